package pipeline

import (
	"testing"

	"flakeview/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoStep() Pipeline {
	return Pipeline{
		{Name: "t1", Query: "create or replace view t1 as select 1 as x"},
		{Name: "t2", Query: "create or replace view t2 as select x + 1 as y from t1"},
	}
}

func TestPipelineValidate(t *testing.T) {
	t.Run("valid order", func(t *testing.T) {
		assert.NoError(t, twoStep().Validate())
	})

	t.Run("reversed order", func(t *testing.T) {
		p := twoStep()
		p[0], p[1] = p[1], p[0]

		err := p.Validate()
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeDependencyOrder, errors.GetErrorCode(err))
		assert.Contains(t, err.Error(), `"t2" (position 1) reads "t1"`)

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.NotEmpty(t, appErr.Suggestions)
	})

	t.Run("empty pipeline", func(t *testing.T) {
		err := Pipeline{}.Validate()
		assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetErrorCode(err))
	})

	t.Run("reports every issue", func(t *testing.T) {
		p := Pipeline{
			{Name: "", Query: "create or replace view a as select 1"},
			{Name: "b", Query: "   "},
			{Name: "c", Query: "create or replace table c as select 1"},
			{Name: "d", Query: "create or replace view a as select 2"},
			{Name: "d", Query: "create or replace view e as select 3"},
		}

		err := p.Validate()
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetErrorCode(err))

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		issues, ok := appErr.Context["issues"].([]string)
		require.True(t, ok)
		assert.Len(t, issues, 5)
	})

	t.Run("self reference is not a dependency", func(t *testing.T) {
		p := Pipeline{{Name: "v", Query: "create or replace view v as select * from v_source join v on true"}}
		assert.NoError(t, p.Validate())
	})

	t.Run("external relations are ignored", func(t *testing.T) {
		p := Pipeline{{Name: "v", Query: "create or replace view v as select * from other_db.public.raw"}}
		assert.NoError(t, p.Validate())
	})
}

func TestPipelineDependencies(t *testing.T) {
	p := Pipeline{
		{Name: "base", Query: "create or replace view analytics.base as select 1 as id"},
		{Name: "qualified", Query: "create or replace view q as select * from analytics.base"},
		{Name: "short", Query: "create or replace view s as select * from BASE b join q on q.id = b.id"},
	}

	assert.Equal(t, [][]int{nil, {0}, {0, 1}}, p.Dependencies())
}

func TestPipelineDependenciesQualifiedReference(t *testing.T) {
	p := Pipeline{
		{Name: "t2", Query: "create or replace view t2 as select x from silver.t1"},
		{Name: "t1", Query: "create or replace view t1 as select 1 as x"},
	}

	assert.Equal(t, [][]int{{1}, nil}, p.Dependencies())

	err := p.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDependencyOrder, errors.GetErrorCode(err))

	other := Pipeline{
		{Name: "t1", Query: "create or replace view gold.t1 as select 1 as x"},
		{Name: "t2", Query: "create or replace view t2 as select x from silver.t1"},
	}
	assert.Equal(t, [][]int{nil, nil}, other.Dependencies(), "qualified targets must match exactly")
}

func TestPipelineDependenciesIgnoreCommonTables(t *testing.T) {
	p := Pipeline{
		{Name: "v", Query: "create or replace view v as with t1 as (select 1 as x) select x from t1"},
		{Name: "t1", Query: "create or replace view t1 as select 2 as x"},
	}

	assert.Equal(t, [][]int{nil, nil}, p.Dependencies())
	assert.NoError(t, p.Validate())
}

func TestPipelineSorted(t *testing.T) {
	p := Pipeline{
		{Name: "t2", Query: "create or replace view t2 as select x + 1 as y from t1"},
		{Name: "other", Query: "create or replace view other as select 5 as z"},
		{Name: "t1", Query: "create or replace view t1 as select 1 as x"},
	}

	sorted, err := p.Sorted()
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "other"}, sorted.Names())
	assert.NoError(t, sorted.Validate())

	unchanged, err := twoStep().Sorted()
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, unchanged.Names())
}

func TestPipelineSortedCycle(t *testing.T) {
	p := Pipeline{
		{Name: "a", Query: "create or replace view a as select * from b"},
		{Name: "b", Query: "create or replace view b as select * from a"},
	}

	_, err := p.Sorted()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDependencyOrder, errors.GetErrorCode(err))
}

func TestPipelineFrom(t *testing.T) {
	p := Harmonize()

	suffix, err := p.From("major_us_cities")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"major_us_cities",
		"zip_codes_in_city",
		"weather_joined_with_major_cities",
		"attractions",
	}, suffix.Names())

	_, err = p.From("nope")
	assert.Equal(t, errors.ErrCodeNotFound, errors.GetErrorCode(err))
}

func TestPipelineSelect(t *testing.T) {
	p := Harmonize()

	selected, err := p.Select("major_us_cities")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"major_us_cities",
		"weather_joined_with_major_cities",
		"attractions",
	}, selected.Names())

	selected, err = p.Select("attractions", "flight_emissions")
	require.NoError(t, err)
	assert.Equal(t, []string{"flight_emissions", "flights_from_home", "attractions"}, selected.Names())

	_, err = p.Select("flight_emissions", "missing")
	assert.Equal(t, errors.ErrCodeNotFound, errors.GetErrorCode(err))
}

func TestPipelineLookup(t *testing.T) {
	p := twoStep()

	v, ok := p.Lookup("t2")
	require.True(t, ok)
	assert.Equal(t, "T2", v.Target())
	assert.Equal(t, []string{"T1"}, v.References())
	assert.Equal(t, 1, p.Index("t2"))

	_, ok = p.Lookup("t3")
	assert.False(t, ok)
	assert.Equal(t, -1, p.Index("t3"))
}
