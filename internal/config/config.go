package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultLocation     = "Athens, GA"
	DefaultRadiusMeters = 16093 // 10 miles
	DefaultStationType  = "bus_station"
)

type Config struct {
	Environment       string
	LogLevel          zerolog.Level
	HTTPTimeout       time.Duration `validate:"gt=0"`
	MapsBaseURL       string        `validate:"required,url"`
	MapsAPIKey        string
	MapsRatePerSecond int    `validate:"gte=0"`
	DefaultLocation   string `validate:"required"`
	RadiusMeters      int    `validate:"gt=0,lte=50000"`
	StationType       string `validate:"required"`
	EnrichTimeout     time.Duration `validate:"gt=0"`
	EnrichWorkers     int           `validate:"gt=0"`
	Port              string
}

type Option func(*Config)

// WithEnvironment allows setting the environment
func WithEnvironment(env string) Option {
	return func(c *Config) {
		c.Environment = env
	}
}

// WithLogLevel allows setting the log level
func WithLogLevel(level string) Option {
	return func(c *Config) {
		parsedLevel, err := zerolog.ParseLevel(level)
		if err != nil {
			parsedLevel = zerolog.InfoLevel
		}
		c.LogLevel = parsedLevel
	}
}

// WithHTTPTimeout allows setting the HTTP timeout
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HTTPTimeout = timeout
	}
}

func WithMaps(baseURL, apiKey string) Option {
	return func(c *Config) {
		c.MapsBaseURL = baseURL
		c.MapsAPIKey = apiKey
	}
}

func WithMapsRate(perSecond int) Option {
	return func(c *Config) {
		c.MapsRatePerSecond = perSecond
	}
}

// WithSearch sets the fallback place, search radius and place type used by
// the station search.
func WithSearch(defaultLocation string, radiusMeters int, stationType string) Option {
	return func(c *Config) {
		c.DefaultLocation = defaultLocation
		c.RadiusMeters = radiusMeters
		c.StationType = stationType
	}
}

func WithEnrichment(timeout time.Duration, workers int) Option {
	return func(c *Config) {
		c.EnrichTimeout = timeout
		c.EnrichWorkers = workers
	}
}

func WithPort(port string) Option {
	return func(c *Config) {
		c.Port = port
	}
}

// New creates a new configuration with default values
func New(opts ...Option) *Config {
	cfg := &Config{
		Environment:       "production",
		LogLevel:          zerolog.InfoLevel,
		HTTPTimeout:       10 * time.Second,
		MapsBaseURL:       "https://maps.googleapis.com",
		MapsRatePerSecond: 20,
		DefaultLocation:   DefaultLocation,
		RadiusMeters:      DefaultRadiusMeters,
		StationType:       DefaultStationType,
		EnrichTimeout:     5 * time.Second,
		EnrichWorkers:     8,
		Port:              "8080",
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) IsLocal() bool {
	return c.Environment == "local" || c.Environment == "development"
}

// InitializeLogging sets up logging based on the configuration
func (c *Config) InitializeLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(c.LogLevel)

	if c.IsLocal() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	return New(
		WithEnvironment(getEnvOrDefault("ENV", "production")),
		WithLogLevel(getEnvOrDefault("LOG_LEVEL", "info")),
		WithHTTPTimeout(getDurationEnvOrDefault("HTTP_TIMEOUT", 10*time.Second)),
		WithMaps(
			getEnvOrDefault("MAPS_BASE_URL", "https://maps.googleapis.com"),
			os.Getenv("GOOGLE_MAPS_API_KEY"),
		),
		WithMapsRate(getEnvInt("MAPS_RATE_PER_SECOND", 20)),
		WithSearch(
			getEnvOrDefault("DEFAULT_LOCATION", DefaultLocation),
			getEnvInt("SEARCH_RADIUS_METERS", DefaultRadiusMeters),
			getEnvOrDefault("STATION_TYPE", DefaultStationType),
		),
		WithEnrichment(
			getDurationEnvOrDefault("ENRICH_TIMEOUT", 5*time.Second),
			getEnvInt("ENRICH_WORKERS", 8),
		),
		WithPort(getEnvOrDefault("PORT", "8080")),
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultVal int) int {
	if val, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
		log.Warn().Str("key", key).Msg("Invalid integer value in environment variable, using default")
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, exists := os.LookupEnv(key); exists {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}
