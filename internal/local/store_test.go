package local

import (
	"context"
	"path/filepath"
	"testing"

	"flakeview/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreInMemory(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, "")
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, MemoryPath, store.Path())

	require.NoError(t, store.ExecContext(ctx, "create or replace view t1 as select 1 as x"))
	require.NoError(t, store.ExecContext(ctx, "create or replace view t2 as select x + 1 as y from t1"))

	var y int
	require.NoError(t, store.QueryRowContext(ctx, "select y from t2").Scan(&y))
	assert.Equal(t, 2, y)

	views, err := store.Views(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, views)
}

func TestStoreMissingRelation(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, MemoryPath)
	require.NoError(t, err)
	defer store.Close()

	err = store.ExecContext(ctx, "create or replace view t2 as select x + 1 as y from t1")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSQLObjectNotFound, errors.GetErrorCode(err))
}

func TestStoreFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rehearsal.duckdb")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.ExecContext(ctx, "create or replace view t1 as select 41 as x"))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	var x int
	require.NoError(t, reopened.QueryRowContext(ctx, "select x + 1 from t1").Scan(&x))
	assert.Equal(t, 42, x)
}

func TestStoreRejectsTraversal(t *testing.T) {
	_, err := Open(context.Background(), "../outside.duckdb")
	assert.Equal(t, errors.ErrCodeFileOperation, errors.GetErrorCode(err))
}
