package config

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// CacheConfig holds all cache-related configuration
type CacheConfig struct {
	// Geocode results rarely change, so they live longest.
	GeocodeLRUSize       int
	GeocodeLRUTTLMinutes int
	GeocodeDynamoTTLDays int
	GeocodeTable         string

	// Nearby station lists per search area
	StationLRUSize       int
	StationLRUTTLMinutes int
	StationS3TTLHours    int
	StationCacheBucket   string

	// Directions are live data; keep them briefly.
	DirectionsLRUSize       int
	DirectionsLRUTTLSeconds int

	EnableLRUCache    bool
	EnableDynamoCache bool
	EnableS3Cache     bool
}

const (
	defaultGeocodeLRUSize          = 500
	defaultGeocodeLRUTTLMinutes    = 24 * 60
	defaultGeocodeDynamoTTLDays    = 30
	defaultGeocodeTable            = "geocode-cache"
	defaultStationLRUSize          = 200
	defaultStationLRUTTLMinutes    = 60
	defaultStationS3TTLHours       = 24
	defaultDirectionsLRUSize       = 2000
	defaultDirectionsLRUTTLSeconds = 60
)

// GetCacheConfig returns the cache configuration from environment variables or defaults
func GetCacheConfig() *CacheConfig {
	bucket := os.Getenv("STATION_CACHE_BUCKET")
	config := &CacheConfig{
		GeocodeLRUSize:          getEnvInt("CACHE_GEOCODE_LRU_SIZE", defaultGeocodeLRUSize),
		GeocodeLRUTTLMinutes:    getEnvInt("CACHE_GEOCODE_LRU_TTL_MINUTES", defaultGeocodeLRUTTLMinutes),
		GeocodeDynamoTTLDays:    getEnvInt("CACHE_GEOCODE_DYNAMO_TTL_DAYS", defaultGeocodeDynamoTTLDays),
		GeocodeTable:            getEnvOrDefault("GEOCODE_TABLE", defaultGeocodeTable),
		StationLRUSize:          getEnvInt("CACHE_STATION_LRU_SIZE", defaultStationLRUSize),
		StationLRUTTLMinutes:    getEnvInt("CACHE_STATION_LRU_TTL_MINUTES", defaultStationLRUTTLMinutes),
		StationS3TTLHours:       getEnvInt("CACHE_STATION_S3_TTL_HOURS", defaultStationS3TTLHours),
		StationCacheBucket:      bucket,
		DirectionsLRUSize:       getEnvInt("CACHE_DIRECTIONS_LRU_SIZE", defaultDirectionsLRUSize),
		DirectionsLRUTTLSeconds: getEnvInt("CACHE_DIRECTIONS_LRU_TTL_SECONDS", defaultDirectionsLRUTTLSeconds),
		EnableLRUCache:          getEnvBool("CACHE_ENABLE_LRU", true),
		EnableDynamoCache:       getEnvBool("CACHE_ENABLE_DYNAMO", false),
		EnableS3Cache:           getEnvBool("CACHE_ENABLE_S3", bucket != ""),
	}

	log.Debug().
		Int("GeocodeLRUSize", config.GeocodeLRUSize).
		Int("GeocodeLRUTTLMinutes", config.GeocodeLRUTTLMinutes).
		Int("GeocodeDynamoTTLDays", config.GeocodeDynamoTTLDays).
		Str("GeocodeTable", config.GeocodeTable).
		Int("StationLRUSize", config.StationLRUSize).
		Int("StationS3TTLHours", config.StationS3TTLHours).
		Str("StationCacheBucket", config.StationCacheBucket).
		Int("DirectionsLRUSize", config.DirectionsLRUSize).
		Int("DirectionsLRUTTLSeconds", config.DirectionsLRUTTLSeconds).
		Bool("EnableLRUCache", config.EnableLRUCache).
		Bool("EnableDynamoCache", config.EnableDynamoCache).
		Bool("EnableS3Cache", config.EnableS3Cache).
		Msg("Cache configuration loaded")

	return config
}

func (c *CacheConfig) GetGeocodeLRUTTL() time.Duration {
	return time.Duration(c.GeocodeLRUTTLMinutes) * time.Minute
}

func (c *CacheConfig) GetGeocodeDynamoTTL() time.Duration {
	return time.Duration(c.GeocodeDynamoTTLDays) * 24 * time.Hour
}

func (c *CacheConfig) GetStationLRUTTL() time.Duration {
	return time.Duration(c.StationLRUTTLMinutes) * time.Minute
}

func (c *CacheConfig) GetStationS3TTL() time.Duration {
	return time.Duration(c.StationS3TTLHours) * time.Hour
}

func (c *CacheConfig) GetDirectionsLRUTTL() time.Duration {
	return time.Duration(c.DirectionsLRUTTLSeconds) * time.Second
}
