// Package bootstrap wires configuration into a ready search service. Every
// entry point builds its service here so Lambda and local runs behave the
// same.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/bbernstein/busstops/backend-go/internal/cache"
	"github.com/bbernstein/busstops/backend-go/internal/config"
	"github.com/bbernstein/busstops/backend-go/internal/geocode"
	"github.com/bbernstein/busstops/backend-go/internal/models"
	"github.com/bbernstein/busstops/backend-go/internal/search"
	"github.com/bbernstein/busstops/backend-go/internal/station"
	"github.com/bbernstein/busstops/backend-go/internal/transit"
	"github.com/bbernstein/busstops/backend-go/pkg/http/client"
	"github.com/rs/zerolog/log"
)

// Clients lets callers substitute AWS clients. Nil fields are created from
// the default AWS configuration when the matching cache is enabled.
type Clients struct {
	Dynamo cache.DynamoDBClient
	S3     cache.S3Client
}

func NewSearchService(ctx context.Context, cfg *config.Config, cacheCfg *config.CacheConfig, clients Clients) (*search.Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MapsAPIKey == "" {
		log.Warn().Msg("GOOGLE_MAPS_API_KEY is not set; Maps requests will be rejected")
	}
	if cacheCfg == nil {
		cacheCfg = config.GetCacheConfig()
	}

	httpClient := client.New(client.Options{
		BaseURL:       cfg.MapsBaseURL,
		APIKey:        cfg.MapsAPIKey,
		Timeout:       cfg.HTTPTimeout,
		RatePerSecond: cfg.MapsRatePerSecond,
	})

	geocodeOpts, err := geocodeOptions(ctx, cacheCfg, clients.Dynamo)
	if err != nil {
		return nil, err
	}
	locatorOpts, err := locatorOptions(ctx, cacheCfg, clients.S3)
	if err != nil {
		return nil, err
	}

	enricherOpts := []transit.Option{
		transit.WithWorkers(cfg.EnrichWorkers),
		transit.WithTimeout(cfg.EnrichTimeout),
	}
	if cacheCfg.EnableLRUCache {
		mem, err := cache.NewTTLCache[[]models.RouteDeparture]("directions", cacheCfg.DirectionsLRUSize, cacheCfg.GetDirectionsLRUTTL())
		if err != nil {
			return nil, err
		}
		enricherOpts = append(enricherOpts, transit.WithMemoryCache(mem))
	}

	return search.NewService(
		geocode.NewResolver(httpClient, cfg.DefaultLocation, geocodeOpts...),
		station.NewLocator(httpClient, locatorOpts...),
		transit.NewEnricher(httpClient, enricherOpts...),
		search.WithDefaults(cfg.DefaultLocation, cfg.RadiusMeters, cfg.StationType),
	), nil
}

func geocodeOptions(ctx context.Context, cacheCfg *config.CacheConfig, dynamo cache.DynamoDBClient) ([]geocode.Option, error) {
	var opts []geocode.Option

	if cacheCfg.EnableLRUCache {
		mem, err := cache.NewTTLCache[models.Coordinates]("geocode", cacheCfg.GeocodeLRUSize, cacheCfg.GetGeocodeLRUTTL())
		if err != nil {
			return nil, err
		}
		opts = append(opts, geocode.WithMemoryCache(mem))
	}

	if cacheCfg.EnableDynamoCache {
		if dynamo == nil {
			dc, err := cache.NewDynamoClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("creating DynamoDB client: %w", err)
			}
			dynamo = dc
		}
		opts = append(opts, geocode.WithStore(
			cache.NewDynamoGeocodeCache(dynamo, cacheCfg.GeocodeTable, cacheCfg.GetGeocodeDynamoTTL()),
		))
	}

	return opts, nil
}

func locatorOptions(ctx context.Context, cacheCfg *config.CacheConfig, s3Client cache.S3Client) ([]station.Option, error) {
	var opts []station.Option

	if cacheCfg.EnableLRUCache {
		mem, err := cache.NewTTLCache[[]models.Station]("stations", cacheCfg.StationLRUSize, cacheCfg.GetStationLRUTTL())
		if err != nil {
			return nil, err
		}
		opts = append(opts, station.WithMemoryCache(mem))
	}

	if cacheCfg.EnableS3Cache && cacheCfg.StationCacheBucket != "" {
		if s3Client == nil {
			sc, err := cache.NewS3Client(ctx)
			if err != nil {
				return nil, fmt.Errorf("creating S3 client: %w", err)
			}
			s3Client = sc
		}
		opts = append(opts, station.WithS3Cache(
			cache.NewS3StationCache(s3Client, cacheCfg.StationCacheBucket, cacheCfg.GetStationS3TTL()),
		))
	}

	return opts, nil
}
