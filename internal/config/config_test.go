package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigWithDefaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "https://maps.googleapis.com", cfg.MapsBaseURL)
	assert.Equal(t, DefaultLocation, cfg.DefaultLocation)
	assert.Equal(t, DefaultRadiusMeters, cfg.RadiusMeters)
	assert.Equal(t, DefaultStationType, cfg.StationType)
	assert.Equal(t, 5*time.Second, cfg.EnrichTimeout)
	assert.Equal(t, 8, cfg.EnrichWorkers)
	assert.NoError(t, cfg.Validate())
}

func TestOptions(t *testing.T) {
	cfg := New(
		WithEnvironment("development"),
		WithLogLevel("debug"),
		WithHTTPTimeout(30*time.Second),
		WithMaps("http://localhost:9999", "key"),
		WithMapsRate(5),
		WithSearch("Decatur, GA", 800, "transit_station"),
		WithEnrichment(2*time.Second, 3),
		WithPort("9090"),
	)

	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsLocal())
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "http://localhost:9999", cfg.MapsBaseURL)
	assert.Equal(t, "key", cfg.MapsAPIKey)
	assert.Equal(t, 5, cfg.MapsRatePerSecond)
	assert.Equal(t, "Decatur, GA", cfg.DefaultLocation)
	assert.Equal(t, 800, cfg.RadiusMeters)
	assert.Equal(t, "transit_station", cfg.StationType)
	assert.Equal(t, 2*time.Second, cfg.EnrichTimeout)
	assert.Equal(t, 3, cfg.EnrichWorkers)
	assert.Equal(t, "9090", cfg.Port)
}

func TestWithLogLevelInvalid(t *testing.T) {
	cfg := New(WithLogLevel("chatty"))
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{name: "missing base url", opts: []Option{WithMaps("", "")}},
		{name: "zero timeout", opts: []Option{WithHTTPTimeout(0)}},
		{name: "negative rate", opts: []Option{WithMapsRate(-1)}},
		{name: "empty default location", opts: []Option{WithSearch("", 100, "bus_station")}},
		{name: "radius over limit", opts: []Option{WithSearch("x", 50001, "bus_station")}},
		{name: "no workers", opts: []Option{WithEnrichment(time.Second, 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.opts...).Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestInitializeLogging(t *testing.T) {
	original := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(original) })

	cfg := New(WithEnvironment("local"), WithLogLevel("debug"))
	cfg.InitializeLogging()

	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("GOOGLE_MAPS_API_KEY", "secret")
	t.Setenv("MAPS_RATE_PER_SECOND", "7")
	t.Setenv("DEFAULT_LOCATION", "Atlanta, GA")
	t.Setenv("SEARCH_RADIUS_METERS", "1200")
	t.Setenv("ENRICH_TIMEOUT", "3s")
	t.Setenv("ENRICH_WORKERS", "not-a-number")

	cfg := LoadFromEnv()

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, zerolog.WarnLevel, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "secret", cfg.MapsAPIKey)
	assert.Equal(t, 7, cfg.MapsRatePerSecond)
	assert.Equal(t, "Atlanta, GA", cfg.DefaultLocation)
	assert.Equal(t, 1200, cfg.RadiusMeters)
	assert.Equal(t, 3*time.Second, cfg.EnrichTimeout)
	assert.Equal(t, 8, cfg.EnrichWorkers, "invalid integers fall back to the default")
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_ENV_VAR", "value")

	assert.Equal(t, "value", getEnvOrDefault("TEST_ENV_VAR", "default"))
	assert.Equal(t, "default", getEnvOrDefault("NON_EXISTENT_ENV_VAR", "default"))
}

func TestGetDurationEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_DURATION_ENV_VAR", "2s")
	t.Setenv("TEST_BAD_DURATION_ENV_VAR", "soon")

	assert.Equal(t, 2*time.Second, getDurationEnvOrDefault("TEST_DURATION_ENV_VAR", time.Second))
	assert.Equal(t, time.Second, getDurationEnvOrDefault("TEST_BAD_DURATION_ENV_VAR", time.Second))
	assert.Equal(t, time.Second, getDurationEnvOrDefault("NON_EXISTENT_DURATION_ENV_VAR", time.Second))
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{value: "true", want: true},
		{value: "1", want: true},
		{value: "yes", want: true},
		{value: "false", want: false},
		{value: "off", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL_ENV_VAR", tt.value)
			assert.Equal(t, tt.want, getEnvBool("TEST_BOOL_ENV_VAR", !tt.want))
		})
	}
	assert.True(t, getEnvBool("NON_EXISTENT_BOOL_ENV_VAR", true))
}
