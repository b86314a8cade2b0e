package transit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/bbernstein/busstops/backend-go/internal/cache"
	"github.com/bbernstein/busstops/backend-go/internal/departure"
	"github.com/bbernstein/busstops/backend-go/internal/metrics"
	"github.com/bbernstein/busstops/backend-go/internal/models"
	"github.com/bbernstein/busstops/backend-go/pkg/http/client"
	"github.com/rs/zerolog/log"
)

const (
	directionsPath = "/maps/api/directions/json"

	defaultWorkers = 8
	defaultTimeout = 5 * time.Second
)

// DirectionsError represents a failed directions query for one station
type DirectionsError struct {
	StationID string
	Message   string
	Err       error
}

func (e *DirectionsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("directions to %s: %s: %v", e.StationID, e.Message, e.Err)
	}
	return fmt.Sprintf("directions to %s: %s", e.StationID, e.Message)
}

func (e *DirectionsError) Unwrap() error {
	return e.Err
}

// EnrichResult is the settled outcome for one station. Failed stations carry
// no routes and the error that caused the failure.
type EnrichResult struct {
	StationID string
	Routes    []models.RouteDeparture
	Failed    bool
	Err       error
}

type Enricher struct {
	httpClient client.Interface
	memCache   *cache.TTLCache[[]models.RouteDeparture]
	workers    int
	timeout    time.Duration
	now        func() time.Time
}

type Option func(*Enricher)

func WithWorkers(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithTimeout bounds each directions call.
func WithTimeout(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithMemoryCache(c *cache.TTLCache[[]models.RouteDeparture]) Option {
	return func(e *Enricher) {
		e.memCache = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Enricher) {
		e.now = now
	}
}

func NewEnricher(httpClient client.Interface, opts ...Option) *Enricher {
	e := &Enricher{
		httpClient: httpClient,
		workers:    defaultWorkers,
		timeout:    defaultTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func cacheKey(origin string, station models.Station) string {
	return cache.NormalizeAddress(origin) + "|" + station.ID
}

// Enrich queries transit directions from origin to the station and returns the
// transit legs as departures sorted by instant. A provider ZERO_RESULTS or
// NOT_FOUND means the station has no reachable routes and is not an error.
func (e *Enricher) Enrich(ctx context.Context, origin string, station models.Station) ([]models.RouteDeparture, error) {
	key := cacheKey(origin, station)
	if routes, ok := e.memCache.Get(key); ok {
		return routes, nil
	}

	start := time.Now()
	params := url.Values{}
	params.Set("origin", origin)
	params.Set("destination", fmt.Sprintf("%f,%f", station.Coordinates.Lat, station.Coordinates.Lng))
	params.Set("mode", "transit")
	params.Set("departure_time", "now")

	resp, err := e.httpClient.Get(ctx, directionsPath, params)
	if err != nil {
		metrics.ObserveUpstream("directions", "transport_error", start)
		return nil, &DirectionsError{
			StationID: station.ID,
			Message:   "request failed",
			Err:       fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, err),
		}
	}

	var body models.DirectionsResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		metrics.ObserveUpstream("directions", "decode_error", start)
		return nil, &DirectionsError{
			StationID: station.ID,
			Message:   "decoding response",
			Err:       fmt.Errorf("%w: %w", models.ErrParseFailure, err),
		}
	}
	metrics.ObserveUpstream("directions", body.Status, start)

	var routes []models.RouteDeparture
	switch body.Status {
	case models.StatusOK:
		routes = e.extractRoutes(body)
	case models.StatusZeroResults, "NOT_FOUND":
		routes = []models.RouteDeparture{}
	default:
		return nil, &DirectionsError{
			StationID: station.ID,
			Message:   fmt.Sprintf("status %s %s", body.Status, body.ErrorMessage),
			Err:       models.ErrUpstreamUnavailable,
		}
	}

	e.memCache.Add(key, routes)
	return routes, nil
}

// extractRoutes keeps the transit steps of the first suggested route.
func (e *Enricher) extractRoutes(body models.DirectionsResponse) []models.RouteDeparture {
	routes := []models.RouteDeparture{}
	if len(body.Routes) == 0 {
		return routes
	}

	now := e.now()
	for _, leg := range body.Routes[0].Legs {
		for _, step := range leg.Steps {
			if step.TransitDetails == nil {
				continue
			}
			routes = append(routes, toDeparture(*step.TransitDetails, now))
		}
	}

	departure.SortRoutes(routes)
	return routes
}

func toDeparture(td models.TransitDetails, now time.Time) models.RouteDeparture {
	line := td.Line.ShortName
	if line == "" {
		line = td.Line.Name
	}

	dep := models.RouteDeparture{
		Line:    line,
		RawText: td.DepartureTime.Text,
	}
	if td.DepartureTime.TimeZone != "" {
		tz := td.DepartureTime.TimeZone
		dep.TimeZone = &tz
	}
	if td.DepartureTime.Value != 0 {
		epoch := td.DepartureTime.Value
		dep.EpochValue = &epoch
	}

	loc := departure.Location(td.DepartureTime.TimeZone, now.Location())
	if instant, ok := departure.Normalize(dep.RawText, dep.EpochValue, now, loc); ok {
		dep.DepartureInstant = &instant
	} else {
		log.Debug().Str("line", line).Str("text", dep.RawText).Msg("Unparsable departure time")
	}

	return dep
}

// EnrichAll enriches every station concurrently with a bounded worker pool.
// Every station settles: a failure or timeout marks only that station Failed.
// Results are in input order. Cancelling ctx stops queued work and aborts
// in-flight calls.
func (e *Enricher) EnrichAll(ctx context.Context, origin string, stations []models.Station) []EnrichResult {
	results := make([]EnrichResult, len(stations))
	if len(stations) == 0 {
		return results
	}

	workerCount := e.workers
	if workerCount > len(stations) {
		workerCount = len(stations)
	}

	work := make(chan int, len(stations))
	for i := range stations {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				results[idx] = e.enrichOne(ctx, origin, stations[idx])
			}
		}()
	}
	wg.Wait()

	return results
}

func (e *Enricher) enrichOne(ctx context.Context, origin string, station models.Station) EnrichResult {
	result := EnrichResult{StationID: station.ID, Routes: []models.RouteDeparture{}}

	if err := ctx.Err(); err != nil {
		result.Failed = true
		result.Err = err
		metrics.EnrichmentResults.WithLabelValues("cancelled").Inc()
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	routes, err := e.Enrich(callCtx, origin, station)
	if err != nil {
		result.Failed = true
		result.Err = err
		outcome := "failed"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.EnrichmentResults.WithLabelValues(outcome).Inc()
		log.Warn().Err(err).Str("station_id", station.ID).Msg("Station enrichment failed")
		return result
	}

	metrics.EnrichmentResults.WithLabelValues("ok").Inc()
	result.Routes = routes
	return result
}
