// Package aggregate merges located stations with their enrichment outcomes
// into an ordered result set and derives filtered views of it.
package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bbernstein/busstops/backend-go/internal/departure"
	"github.com/bbernstein/busstops/backend-go/internal/geo"
	"github.com/bbernstein/busstops/backend-go/internal/models"
	"github.com/bbernstein/busstops/backend-go/internal/transit"
	"github.com/rs/zerolog/log"
)

// Build merges stations with their enrichment results, computes each
// station's next departure after now and its distance from ref, and orders
// stations by earliest next departure. Stations without a next departure
// follow all stations with one; ties keep input order.
//
// enrich must be index-aligned with stations, as returned by EnrichAll.
func Build(stations []models.Station, enrich []transit.EnrichResult, ref *models.Coordinates, now time.Time) ([]models.EnrichedStation, error) {
	if len(enrich) != len(stations) {
		return nil, fmt.Errorf("merging enrichment: %d results for %d stations", len(enrich), len(stations))
	}
	if ref != nil {
		if err := geo.Validate(*ref); err != nil {
			return nil, err
		}
	}

	out := make([]models.EnrichedStation, 0, len(stations))
	for i, st := range stations {
		res := enrich[i]
		if res.StationID != "" && res.StationID != st.ID {
			return nil, fmt.Errorf("merging enrichment: result %d is for %s, not %s", i, res.StationID, st.ID)
		}

		// Routes may be shared with a cache; sort a copy.
		routes := make([]models.RouteDeparture, len(res.Routes))
		copy(routes, res.Routes)
		departure.SortRoutes(routes)

		es := models.EnrichedStation{
			Station:          st,
			Routes:           routes,
			NextDeparture:    departure.NextAfter(routes, now),
			EnrichmentFailed: res.Failed,
		}

		// Bad station coordinates leave the distance nil.
		if ref != nil {
			d, err := geo.Haversine(*ref, st.Coordinates)
			if err != nil {
				log.Warn().Err(err).Str("station_id", st.ID).Msg("Skipping distance for station")
			} else {
				es.DistanceFromReference = &d
			}
		}

		out = append(out, es)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].NextDeparture, out[j].NextDeparture
		switch {
		case a != nil && b != nil:
			return a.DepartureInstant.Before(*b.DepartureInstant)
		case a != nil:
			return true
		default:
			return false
		}
	})

	return out, nil
}

// Apply returns the stations of base matching q, in base order. base is never
// modified and the result never aliases it, so Apply can be re-run against
// the same snapshot with different queries.
//
// With a distance threshold, stations whose distance is unknown are excluded.
// Name matching is a case-insensitive substring test; an empty name matches
// everything.
func Apply(base []models.EnrichedStation, q models.Query) []models.EnrichedStation {
	needle := strings.ToLower(strings.TrimSpace(q.NameContains))

	out := make([]models.EnrichedStation, 0, len(base))
	for _, st := range base {
		if q.MaxDistanceKm != nil {
			if st.DistanceFromReference == nil || *st.DistanceFromReference > *q.MaxDistanceKm {
				continue
			}
		}
		if needle != "" && !strings.Contains(strings.ToLower(st.Name), needle) {
			continue
		}
		out = append(out, st)
	}
	return out
}

// FailedCount reports how many stations failed enrichment.
func FailedCount(stations []models.EnrichedStation) int {
	n := 0
	for _, st := range stations {
		if st.EnrichmentFailed {
			n++
		}
	}
	return n
}
