package transit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bbernstein/busstops/backend-go/internal/cache"
	"github.com/bbernstein/busstops/backend-go/internal/models"
	"github.com/bbernstein/busstops/backend-go/pkg/http/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eastern, _ = time.LoadLocation("America/New_York")

func fixedNow() time.Time {
	return time.Date(2024, 10, 3, 15, 20, 0, 0, eastern)
}

func testStation(id string) models.Station {
	return models.Station{ID: id, Name: "Stop " + id, Coordinates: models.Coordinates{Lat: 33.95, Lng: -83.37}}
}

func transitStep(shortName, name, text string, epoch int64) models.DirectionsStep {
	return models.DirectionsStep{
		TravelMode: "TRANSIT",
		TransitDetails: &models.TransitDetails{
			Line: models.TransitLine{Name: name, ShortName: shortName},
			DepartureTime: models.TransitTime{
				Text:     text,
				TimeZone: "America/New_York",
				Value:    epoch,
			},
		},
	}
}

func directionsBody(status string, steps ...models.DirectionsStep) string {
	resp := models.DirectionsResponse{Status: status}
	if len(steps) > 0 {
		resp.Routes = []models.DirectionsRoute{{Legs: []models.DirectionsLeg{{Steps: steps}}}}
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func newTestEnricher(t *testing.T, handler http.HandlerFunc, opts ...Option) *Enricher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	httpClient := client.New(client.Options{BaseURL: server.URL, APIKey: "test-key", Timeout: 5 * time.Second})
	return NewEnricher(httpClient, append([]Option{WithClock(fixedNow)}, opts...)...)
}

func TestEnrich(t *testing.T) {
	evening := time.Date(2024, 10, 3, 19, 45, 0, 0, eastern)

	tests := []struct {
		name         string
		body         string
		wantLines    []string
		wantParsed   []bool
		wantUpstream bool
	}{
		{
			name: "transit steps only, sorted by instant",
			body: directionsBody(models.StatusOK,
				models.DirectionsStep{TravelMode: "WALKING"},
				transitStep("12", "Orbit", "7:45 PM", evening.Unix()),
				models.DirectionsStep{TravelMode: "DRIVING"},
				transitStep("", "Night Owl", "5:30 PM", 0),
			),
			wantLines:  []string{"Night Owl", "12"},
			wantParsed: []bool{true, true},
		},
		{
			name: "unparsable text sorts last",
			body: directionsBody(models.StatusOK,
				transitStep("X", "", "soon", 0),
				transitStep("5", "", "4:00 PM", 0),
			),
			wantLines:  []string{"5", "X"},
			wantParsed: []bool{true, false},
		},
		{
			name:      "no transit legs",
			body:      directionsBody(models.StatusOK, models.DirectionsStep{TravelMode: "WALKING"}),
			wantLines: []string{},
		},
		{
			name:      "zero results means no routes",
			body:      directionsBody(models.StatusZeroResults),
			wantLines: []string{},
		},
		{
			name:         "request denied",
			body:         directionsBody("REQUEST_DENIED"),
			wantUpstream: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				assert.Equal(t, directionsPath, r.URL.Path)
				assert.Equal(t, "transit", q.Get("mode"))
				assert.Equal(t, "now", q.Get("departure_time"))
				assert.Equal(t, "Athens, GA", q.Get("origin"))
				assert.Equal(t, "33.950000,-83.370000", q.Get("destination"))
				_, _ = fmt.Fprint(w, tt.body)
			})

			routes, err := e.Enrich(context.Background(), "Athens, GA", testStation("s1"))
			if tt.wantUpstream {
				var dirErr *DirectionsError
				require.True(t, errors.As(err, &dirErr))
				assert.Equal(t, "s1", dirErr.StationID)
				assert.True(t, errors.Is(err, models.ErrUpstreamUnavailable))
				return
			}

			require.NoError(t, err)
			lines := make([]string, 0, len(routes))
			for i, r := range routes {
				lines = append(lines, r.Line)
				assert.Equal(t, tt.wantParsed[i], r.Parsed(), r.Line)
			}
			assert.Equal(t, tt.wantLines, lines)
		})
	}
}

func TestEnrichKeepsProviderFields(t *testing.T) {
	evening := time.Date(2024, 10, 3, 19, 45, 0, 0, eastern)
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, directionsBody(models.StatusOK, transitStep("12", "Orbit", "7:45 PM", evening.Unix())))
	})

	routes, err := e.Enrich(context.Background(), "Athens, GA", testStation("s1"))
	require.NoError(t, err)
	require.Len(t, routes, 1)

	r := routes[0]
	assert.Equal(t, "7:45 PM", r.RawText)
	require.NotNil(t, r.TimeZone)
	assert.Equal(t, "America/New_York", *r.TimeZone)
	require.NotNil(t, r.EpochValue)
	assert.Equal(t, evening.Unix(), *r.EpochValue)
	require.NotNil(t, r.DepartureInstant)
	assert.True(t, evening.Equal(*r.DepartureInstant))
}

func TestEnrichUsesMemoryCache(t *testing.T) {
	var calls atomic.Int32
	mem, err := cache.NewTTLCache[[]models.RouteDeparture]("directions", 10, time.Minute)
	require.NoError(t, err)

	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = fmt.Fprint(w, directionsBody(models.StatusOK, transitStep("12", "", "7:45 PM", 0)))
	}, WithMemoryCache(mem))

	for i := 0; i < 3; i++ {
		routes, err := e.Enrich(context.Background(), "Athens, GA", testStation("s1"))
		require.NoError(t, err)
		assert.Len(t, routes, 1)
	}
	assert.Equal(t, int32(1), calls.Load())

	_, err = e.Enrich(context.Background(), "Atlanta, GA", testStation("s1"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEnrichAllIsolatesFailures(t *testing.T) {
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Query().Get("destination"), "2."):
			w.WriteHeader(http.StatusInternalServerError)
		case strings.HasPrefix(r.URL.Query().Get("destination"), "3."):
			_, _ = fmt.Fprint(w, `not json`)
		default:
			_, _ = fmt.Fprint(w, directionsBody(models.StatusOK, transitStep("12", "", "7:45 PM", 0)))
		}
	}, WithWorkers(2))

	stations := []models.Station{
		{ID: "a", Coordinates: models.Coordinates{Lat: 1, Lng: 1}},
		{ID: "b", Coordinates: models.Coordinates{Lat: 2, Lng: 2}},
		{ID: "c", Coordinates: models.Coordinates{Lat: 3, Lng: 3}},
		{ID: "d", Coordinates: models.Coordinates{Lat: 4, Lng: 4}},
	}

	results := e.EnrichAll(context.Background(), "Athens, GA", stations)
	require.Len(t, results, 4)

	wantFailed := []bool{false, true, true, false}
	for i, r := range results {
		assert.Equal(t, stations[i].ID, r.StationID, "results keep input order")
		assert.Equal(t, wantFailed[i], r.Failed, r.StationID)
		if r.Failed {
			assert.Error(t, r.Err)
			assert.Empty(t, r.Routes)
			assert.NotNil(t, r.Routes)
		} else {
			assert.NoError(t, r.Err)
			assert.Len(t, r.Routes, 1)
		}
	}

	assert.True(t, errors.Is(results[1].Err, models.ErrUpstreamUnavailable))
	assert.True(t, errors.Is(results[2].Err, models.ErrParseFailure))
}

func TestEnrichAllPerCallTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("destination") == "2.000000,2.000000" {
			select {
			case <-release:
			case <-r.Context().Done():
			}
			return
		}
		_, _ = fmt.Fprint(w, directionsBody(models.StatusOK, transitStep("12", "", "7:45 PM", 0)))
	}, WithTimeout(100*time.Millisecond))

	stations := []models.Station{
		{ID: "fast", Coordinates: models.Coordinates{Lat: 1, Lng: 1}},
		{ID: "slow", Coordinates: models.Coordinates{Lat: 2, Lng: 2}},
	}

	start := time.Now()
	results := e.EnrichAll(context.Background(), "Athens, GA", stations)

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.False(t, results[0].Failed)
	assert.True(t, results[1].Failed)
	assert.True(t, errors.Is(results[1].Err, context.DeadlineExceeded))
}

func TestEnrichAllBoundsConcurrency(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	var mu sync.Mutex

	httpClient := &client.Client{
		GetFunc: func(ctx context.Context, path string, params url.Values) (*client.Response, error) {
			n := inFlight.Add(1)
			mu.Lock()
			if n > maxInFlight.Load() {
				maxInFlight.Store(n)
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return &client.Response{StatusCode: http.StatusOK, Body: []byte(directionsBody(models.StatusZeroResults))}, nil
		},
	}

	e := NewEnricher(httpClient, WithWorkers(3))
	stations := make([]models.Station, 12)
	for i := range stations {
		stations[i] = models.Station{ID: fmt.Sprintf("s%d", i)}
	}

	results := e.EnrichAll(context.Background(), "Athens, GA", stations)
	require.Len(t, results, 12)
	assert.LessOrEqual(t, maxInFlight.Load(), int32(3))
	for _, r := range results {
		assert.False(t, r.Failed)
	}
}

func TestEnrichAllCancelledParent(t *testing.T) {
	var calls atomic.Int32
	httpClient := &client.Client{
		GetFunc: func(ctx context.Context, path string, params url.Values) (*client.Response, error) {
			calls.Add(1)
			return nil, ctx.Err()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewEnricher(httpClient).EnrichAll(ctx, "Athens, GA", []models.Station{testStation("a"), testStation("b")})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Failed)
		assert.True(t, errors.Is(r.Err, context.Canceled))
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestEnrichAllEmpty(t *testing.T) {
	e := NewEnricher(&client.Client{})
	assert.Empty(t, e.EnrichAll(context.Background(), "Athens, GA", nil))
}
