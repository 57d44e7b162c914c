package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHarmonize(t *testing.T) {
	p := Harmonize()

	require.NoError(t, p.Validate())
	assert.Equal(t, []string{
		"flight_emissions",
		"flight_punctuality",
		"flights_from_home",
		"weather_forecast",
		"major_us_cities",
		"zip_codes_in_city",
		"weather_joined_with_major_cities",
		"attractions",
	}, p.Names())

	for _, v := range p {
		assert.Equal(t, normalizeIdentifier(v.Name), v.Target(), "view %s", v.Name)
		assert.NotEmpty(t, v.Description, "view %s", v.Name)
	}
}

func TestHarmonizeDependencies(t *testing.T) {
	p := Harmonize()
	g := p.Graph()

	assert.Equal(t, []string{"flight_emissions", "flight_punctuality"}, g.Parents("flights_from_home"))
	assert.Equal(t, []string{"weather_forecast", "major_us_cities", "zip_codes_in_city"},
		g.Parents("weather_joined_with_major_cities"))
	assert.Equal(t, []string{"major_us_cities"}, g.Parents("attractions"))
	assert.Equal(t, 6, g.EdgeCount())

	sorted, err := p.Sorted()
	require.NoError(t, err)
	assert.Equal(t, p.Names(), sorted.Names())
}

func TestHarmonizeExternalSources(t *testing.T) {
	v, ok := Harmonize().Lookup("flights_from_home")
	require.True(t, ok)

	// stage file reads are not relations
	assert.Equal(t, []string{"FLIGHT_EMISSIONS", "FLIGHT_PUNCTUALITY", "AIRPORTS"}, v.References())
}
