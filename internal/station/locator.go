package station

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/bbernstein/busstops/backend-go/internal/cache"
	"github.com/bbernstein/busstops/backend-go/internal/config"
	"github.com/bbernstein/busstops/backend-go/internal/geo"
	"github.com/bbernstein/busstops/backend-go/internal/metrics"
	"github.com/bbernstein/busstops/backend-go/internal/models"
	"github.com/bbernstein/busstops/backend-go/pkg/http/client"
	"github.com/rs/zerolog/log"
)

const nearbySearchPath = "/maps/api/place/nearbysearch/json"

// LocatorError represents a failed nearby search
type LocatorError struct {
	Message string
	Err     error
}

func (e *LocatorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nearby search: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("nearby search: %s", e.Message)
}

func (e *LocatorError) Unwrap() error {
	return e.Err
}

type Locator struct {
	httpClient client.Interface
	memCache   *cache.TTLCache[[]models.Station]
	s3Cache    cache.StationListCacheProvider
}

type Option func(*Locator)

func WithMemoryCache(c *cache.TTLCache[[]models.Station]) Option {
	return func(l *Locator) {
		l.memCache = c
	}
}

func WithS3Cache(c cache.StationListCacheProvider) Option {
	return func(l *Locator) {
		l.s3Cache = c
	}
}

func NewLocator(httpClient client.Interface, opts ...Option) *Locator {
	l := &Locator{httpClient: httpClient}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FindNearby returns stations of stationType within radiusMeters of origin in
// provider order. A provider ZERO_RESULTS is an empty slice, not an error.
func (l *Locator) FindNearby(ctx context.Context, origin models.Coordinates, radiusMeters int, stationType string) ([]models.Station, error) {
	if err := geo.Validate(origin); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		radiusMeters = config.DefaultRadiusMeters
	}
	if stationType == "" {
		stationType = config.DefaultStationType
	}

	area := cache.AreaKey(origin, radiusMeters, stationType)

	if stations, ok := l.memCache.Get(area); ok {
		log.Debug().Str("area", area).Msg("Memory cache HIT for station list")
		return stations, nil
	}

	if l.s3Cache != nil {
		stations, err := l.s3Cache.GetStations(ctx, area)
		if err != nil {
			log.Error().Err(err).Str("area", area).Msg("Error getting stations from S3 cache")
		} else if stations != nil {
			metrics.CacheLookup("stations_s3", true)
			log.Debug().Str("area", area).Msg("S3 cache HIT for station list")
			l.memCache.Add(area, stations)
			return stations, nil
		} else {
			metrics.CacheLookup("stations_s3", false)
		}
	}

	stations, err := l.fetch(ctx, origin, radiusMeters, stationType)
	if err != nil {
		return nil, err
	}

	l.memCache.Add(area, stations)
	if l.s3Cache != nil {
		if err := l.s3Cache.SaveStations(ctx, area, stations); err != nil {
			log.Error().Err(err).Str("area", area).Msg("Error saving stations to S3 cache")
		}
	}

	return stations, nil
}

func (l *Locator) fetch(ctx context.Context, origin models.Coordinates, radiusMeters int, stationType string) ([]models.Station, error) {
	start := time.Now()
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", origin.Lat, origin.Lng))
	params.Set("radius", strconv.Itoa(radiusMeters))
	params.Set("type", stationType)

	resp, err := l.httpClient.Get(ctx, nearbySearchPath, params)
	if err != nil {
		metrics.ObserveUpstream("places", "transport_error", start)
		return nil, &LocatorError{
			Message: "request failed",
			Err:     fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, err),
		}
	}

	var body models.PlacesResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		metrics.ObserveUpstream("places", "decode_error", start)
		return nil, &LocatorError{
			Message: "decoding response",
			Err:     fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, err),
		}
	}
	metrics.ObserveUpstream("places", body.Status, start)

	switch body.Status {
	case models.StatusOK:
	case models.StatusZeroResults:
		return []models.Station{}, nil
	default:
		return nil, &LocatorError{
			Message: fmt.Sprintf("status %s %s", body.Status, body.ErrorMessage),
			Err:     models.ErrUpstreamUnavailable,
		}
	}

	stations := make([]models.Station, 0, len(body.Results))
	seen := make(map[string]struct{}, len(body.Results))
	for _, place := range body.Results {
		// place ids identify a station within one result set
		if _, dup := seen[place.PlaceID]; dup {
			continue
		}
		seen[place.PlaceID] = struct{}{}
		stations = append(stations, toStation(place))
	}

	log.Info().
		Int("station_count", len(stations)).
		Int("radius", radiusMeters).
		Str("type", stationType).
		Msg("Found nearby stations")

	return stations, nil
}

func toStation(place models.PlaceResult) models.Station {
	description := place.Vicinity
	if description == "" {
		description = models.NoDescription
	}
	return models.Station{
		ID:   place.PlaceID,
		Name: place.Name,
		Coordinates: models.Coordinates{
			Lat: place.Geometry.Location.Lat,
			Lng: place.Geometry.Location.Lng,
		},
		Description: &description,
	}
}
