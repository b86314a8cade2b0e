// Package search runs the discovery pipeline: geocode the requested place,
// locate nearby stations, enrich them with live departures, and assemble an
// ordered snapshot.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bbernstein/busstops/backend-go/internal/aggregate"
	"github.com/bbernstein/busstops/backend-go/internal/config"
	"github.com/bbernstein/busstops/backend-go/internal/geo"
	"github.com/bbernstein/busstops/backend-go/internal/metrics"
	"github.com/bbernstein/busstops/backend-go/internal/models"
	"github.com/bbernstein/busstops/backend-go/internal/transit"
	"github.com/rs/zerolog/log"
)

type Enricher interface {
	EnrichAll(ctx context.Context, origin string, stations []models.Station) []transit.EnrichResult
}

type Request struct {
	// Location is free text; blank means the configured default place.
	Location string
	// Reference is the point distances are measured from. Nil means the
	// geocoded origin.
	Reference *models.Coordinates
	Query     models.Query
	// SessionKey groups searches from one client. A new search cancels any
	// unfinished search with the same key. Empty disables supersession.
	SessionKey   string
	RadiusMeters int
	StationType  string
}

type Service struct {
	geocoder        models.Geocoder
	locator         models.StationLocator
	enricher        Enricher
	defaultLocation string
	radiusMeters    int
	stationType     string
	now             func() time.Time

	mu     sync.Mutex
	seq    uint64
	active map[string]activeSearch
}

type activeSearch struct {
	id     uint64
	cancel context.CancelCauseFunc
}

type Option func(*Service)

func WithDefaults(location string, radiusMeters int, stationType string) Option {
	return func(s *Service) {
		if location != "" {
			s.defaultLocation = location
		}
		if radiusMeters > 0 {
			s.radiusMeters = radiusMeters
		}
		if stationType != "" {
			s.stationType = stationType
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(geocoder models.Geocoder, locator models.StationLocator, enricher Enricher, opts ...Option) *Service {
	s := &Service{
		geocoder:        geocoder,
		locator:         locator,
		enricher:        enricher,
		defaultLocation: config.DefaultLocation,
		radiusMeters:    config.DefaultRadiusMeters,
		stationType:     config.DefaultStationType,
		now:             time.Now,
		active:          make(map[string]activeSearch),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs the pipeline once and returns the unfiltered snapshot. Geocode
// and locate failures abort the search; enrichment failures only mark the
// affected stations and set Degraded.
func (s *Service) Search(ctx context.Context, req Request) (*models.SearchResult, error) {
	if err := req.Query.Validate(); err != nil {
		return nil, err
	}
	if req.Reference != nil {
		if err := geo.Validate(*req.Reference); err != nil {
			return nil, err
		}
	}

	ctx, done := s.begin(ctx, req.SessionKey)
	defer done()

	result, err := s.run(ctx, req)
	if errors.Is(context.Cause(ctx), models.ErrSuperseded) {
		metrics.Searches.WithLabelValues("superseded").Inc()
		log.Debug().Str("session", req.SessionKey).Msg("Search superseded, discarding results")
		return nil, models.ErrSuperseded
	}
	if err != nil {
		metrics.Searches.WithLabelValues("error").Inc()
		return nil, err
	}

	outcome := "ok"
	if result.Degraded {
		outcome = "degraded"
	}
	metrics.Searches.WithLabelValues(outcome).Inc()
	return result, nil
}

func (s *Service) run(ctx context.Context, req Request) (*models.SearchResult, error) {
	location := strings.TrimSpace(req.Location)
	if location == "" {
		location = s.defaultLocation
	}
	radius := req.RadiusMeters
	if radius <= 0 {
		radius = s.radiusMeters
	}
	stationType := req.StationType
	if stationType == "" {
		stationType = s.stationType
	}

	origin, err := s.geocoder.Resolve(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("geocoding location: %w", err)
	}

	stations, err := s.locator.FindNearby(ctx, origin, radius, stationType)
	if err != nil {
		return nil, fmt.Errorf("finding nearby stations: %w", err)
	}

	enrich := s.enricher.EnrichAll(ctx, location, stations)

	ref := req.Reference
	if ref == nil {
		ref = &origin
	}

	now := s.now()
	built, err := aggregate.Build(stations, enrich, ref, now)
	if err != nil {
		return nil, fmt.Errorf("building results: %w", err)
	}

	failed := aggregate.FailedCount(built)
	log.Info().
		Str("location", location).
		Int("station_count", len(built)).
		Int("failed_stations", failed).
		Msg("Search complete")

	return &models.SearchResult{
		Location:       location,
		Origin:         origin,
		Reference:      ref,
		Stations:       built,
		Degraded:       failed > 0,
		FailedStations: failed,
		EvaluatedAt:    now,
	}, nil
}

// begin registers a search for key, superseding the previous one.
func (s *Service) begin(ctx context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	if key == "" {
		return ctx, func() { cancel(nil) }
	}

	s.mu.Lock()
	s.seq++
	id := s.seq
	if prev, ok := s.active[key]; ok {
		prev.cancel(models.ErrSuperseded)
	}
	s.active[key] = activeSearch{id: id, cancel: cancel}
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		if cur, ok := s.active[key]; ok && cur.id == id {
			delete(s.active, key)
		}
		s.mu.Unlock()
		cancel(nil)
	}
}

// Filtered derives a view of result narrowed by q. result is not modified.
func Filtered(result *models.SearchResult, q models.Query) *models.SearchResult {
	view := *result
	if q.IsZero() {
		view.Stations = make([]models.EnrichedStation, len(result.Stations))
		copy(view.Stations, result.Stations)
		return &view
	}
	view.Stations = aggregate.Apply(result.Stations, q)
	return &view
}
