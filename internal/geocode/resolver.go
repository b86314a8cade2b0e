package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bbernstein/busstops/backend-go/internal/cache"
	"github.com/bbernstein/busstops/backend-go/internal/metrics"
	"github.com/bbernstein/busstops/backend-go/internal/models"
	"github.com/bbernstein/busstops/backend-go/pkg/http/client"
	"github.com/rs/zerolog/log"
)

const geocodePath = "/maps/api/geocode/json"

// GeocodeError represents a failed address resolution
type GeocodeError struct {
	Address string
	Message string
	Err     error
}

func (e *GeocodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geocoding %q: %s: %v", e.Address, e.Message, e.Err)
	}
	return fmt.Sprintf("geocoding %q: %s", e.Address, e.Message)
}

func (e *GeocodeError) Unwrap() error {
	return e.Err
}

type Resolver struct {
	httpClient      client.Interface
	memCache        *cache.TTLCache[models.Coordinates]
	store           cache.GeocodeCacheProvider
	defaultLocation string
}

type Option func(*Resolver)

// WithMemoryCache fronts lookups with an in-process cache.
func WithMemoryCache(c *cache.TTLCache[models.Coordinates]) Option {
	return func(r *Resolver) {
		r.memCache = c
	}
}

// WithStore adds a persistent cache behind the memory cache.
func WithStore(store cache.GeocodeCacheProvider) Option {
	return func(r *Resolver) {
		r.store = store
	}
}

func NewResolver(httpClient client.Interface, defaultLocation string, opts ...Option) *Resolver {
	r := &Resolver{
		httpClient:      httpClient,
		defaultLocation: defaultLocation,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddressOrDefault substitutes the configured fallback place for a blank
// address.
func (r *Resolver) AddressOrDefault(address string) string {
	if strings.TrimSpace(address) == "" {
		return r.defaultLocation
	}
	return address
}

// Resolve returns the coordinates of the first geocode match for address.
// Failures are *GeocodeError wrapping models.ErrNotFound when the provider
// found nothing, and models.ErrUpstreamUnavailable otherwise.
func (r *Resolver) Resolve(ctx context.Context, address string) (models.Coordinates, error) {
	address = r.AddressOrDefault(address)
	key := cache.NormalizeAddress(address)

	if coords, ok := r.memCache.Get(key); ok {
		log.Debug().Str("location", address).Msg("Memory cache HIT for geocode")
		return coords, nil
	}

	if r.store != nil {
		record, err := r.store.GetGeocode(ctx, address)
		if err != nil {
			log.Error().Err(err).Str("location", address).Msg("Error reading geocode cache")
		} else if record != nil {
			metrics.CacheLookup("geocode_dynamo", true)
			coords := record.Coordinates()
			r.memCache.Add(key, coords)
			return coords, nil
		} else {
			metrics.CacheLookup("geocode_dynamo", false)
		}
	}

	coords, err := r.fetch(ctx, address)
	if err != nil {
		return models.Coordinates{}, err
	}

	r.memCache.Add(key, coords)
	if r.store != nil {
		if err := r.store.SaveGeocode(ctx, address, coords); err != nil {
			log.Error().Err(err).Str("location", address).Msg("Error saving geocode to cache")
		}
	}

	return coords, nil
}

func (r *Resolver) fetch(ctx context.Context, address string) (models.Coordinates, error) {
	start := time.Now()
	params := url.Values{}
	params.Set("address", address)

	resp, err := r.httpClient.Get(ctx, geocodePath, params)
	if err != nil {
		metrics.ObserveUpstream("geocode", "transport_error", start)
		return models.Coordinates{}, &GeocodeError{
			Address: address,
			Message: "request failed",
			Err:     fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, err),
		}
	}

	var body models.GeocodeResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		metrics.ObserveUpstream("geocode", "decode_error", start)
		return models.Coordinates{}, &GeocodeError{
			Address: address,
			Message: "decoding response",
			Err:     fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, err),
		}
	}
	metrics.ObserveUpstream("geocode", body.Status, start)

	switch {
	case body.Status == models.StatusZeroResults,
		body.Status == models.StatusOK && len(body.Results) == 0:
		return models.Coordinates{}, &GeocodeError{
			Address: address,
			Message: "no results",
			Err:     models.ErrNotFound,
		}
	case body.Status != models.StatusOK:
		return models.Coordinates{}, &GeocodeError{
			Address: address,
			Message: fmt.Sprintf("status %s %s", body.Status, body.ErrorMessage),
			Err:     models.ErrUpstreamUnavailable,
		}
	}

	loc := body.Results[0].Geometry.Location
	log.Debug().
		Str("location", address).
		Float64("lat", loc.Lat).
		Float64("lng", loc.Lng).
		Msg("Geocoded location")

	return models.Coordinates{Lat: loc.Lat, Lng: loc.Lng}, nil
}

// IsNotFound reports whether err is a geocode miss rather than a failure.
func IsNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
