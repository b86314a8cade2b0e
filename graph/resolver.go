package graph

import (
	"context"
	"errors"
	"time"

	"github.com/bbernstein/busstops/backend-go/internal/api"
	"github.com/bbernstein/busstops/backend-go/internal/geo"
	"github.com/bbernstein/busstops/backend-go/internal/handler"
	"github.com/bbernstein/busstops/backend-go/internal/models"
	"github.com/bbernstein/busstops/backend-go/internal/search"
	"github.com/graphql-go/graphql"
	"github.com/rs/zerolog/log"
)

type Resolver struct {
	Searcher handler.Searcher
}

type sessionKeyCtx struct{}

// WithSessionKey attaches the client session used for search supersession.
func WithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKeyCtx{}, key)
}

func sessionKey(ctx context.Context) string {
	key, _ := ctx.Value(sessionKeyCtx{}).(string)
	return key
}

// StopsArgs are the arguments of the stops query.
type StopsArgs struct {
	Location      string
	Lat           *float64
	Lon           *float64
	MaxDistanceKm *float64
	Name          string
	Radius        *int
}

func stopsArgs(args map[string]interface{}) StopsArgs {
	var a StopsArgs
	if v, ok := args["location"].(string); ok {
		a.Location = v
	}
	if v, ok := args["lat"].(float64); ok {
		a.Lat = &v
	}
	if v, ok := args["lon"].(float64); ok {
		a.Lon = &v
	}
	if v, ok := args["maxDistanceKm"].(float64); ok {
		a.MaxDistanceKm = &v
	}
	if v, ok := args["name"].(string); ok {
		a.Name = v
	}
	if v, ok := args["radius"].(int); ok {
		a.Radius = &v
	}
	return a
}

// Stops runs a search and returns the filtered result.
func (r *Resolver) Stops(ctx context.Context, args StopsArgs) (*models.SearchResult, error) {
	req := search.Request{
		Location:     args.Location,
		Query:        models.Query{MaxDistanceKm: args.MaxDistanceKm, NameContains: args.Name},
		SessionKey: sessionKey(ctx),
	}

	if args.Radius != nil {
		if err := api.ValidateRadius(*args.Radius); err != nil {
			return nil, err
		}
		req.RadiusMeters = *args.Radius
	}

	switch {
	case args.Lat != nil && args.Lon != nil:
		ref := models.Coordinates{Lat: *args.Lat, Lng: *args.Lon}
		if err := geo.Validate(ref); err != nil {
			return nil, err
		}
		req.Reference = &ref
	case args.Lat != nil || args.Lon != nil:
		return nil, &api.InvalidParameterError{Name: "lat/lon", Value: "both are required"}
	}

	if err := req.Query.Validate(); err != nil {
		return nil, err
	}

	result, err := r.Searcher.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return search.Filtered(result, req.Query), nil
}

func (r *Resolver) resolveStops(p graphql.ResolveParams) (interface{}, error) {
	result, err := r.Stops(p.Context, stopsArgs(p.Args))
	if err != nil {
		status, message := api.ErrorStatus(err)
		if status >= 500 {
			log.Error().Err(err).Msg("GraphQL stops query failed")
		}
		return nil, errors.New(message)
	}
	return searchResultMap(result), nil
}

func coordinatesMap(c models.Coordinates) map[string]interface{} {
	return map[string]interface{}{
		"lat": c.Lat,
		"lng": c.Lng,
	}
}

func departureMap(d *models.RouteDeparture) map[string]interface{} {
	if d == nil {
		return nil
	}
	m := map[string]interface{}{
		"line":    d.Line,
		"rawText": d.RawText,
	}
	if d.DepartureInstant != nil {
		m["departureInstant"] = d.DepartureInstant.Format(time.RFC3339)
	}
	if d.TimeZone != nil {
		m["timeZone"] = *d.TimeZone
	}
	if d.EpochValue != nil {
		m["epochValue"] = float64(*d.EpochValue)
	}
	return m
}

func stationMap(s models.EnrichedStation) map[string]interface{} {
	routes := make([]interface{}, 0, len(s.Routes))
	for i := range s.Routes {
		routes = append(routes, departureMap(&s.Routes[i]))
	}

	m := map[string]interface{}{
		"id":               s.ID,
		"name":             s.Name,
		"coordinates":      coordinatesMap(s.Coordinates),
		"routes":           routes,
		"enrichmentFailed": s.EnrichmentFailed,
	}
	if s.Description != nil {
		m["description"] = *s.Description
	}
	if s.NextDeparture != nil {
		m["nextDeparture"] = departureMap(s.NextDeparture)
	}
	if s.DistanceFromReference != nil {
		m["distanceFromReference"] = *s.DistanceFromReference
	}
	return m
}

func searchResultMap(r *models.SearchResult) map[string]interface{} {
	stations := make([]interface{}, 0, len(r.Stations))
	for _, s := range r.Stations {
		stations = append(stations, stationMap(s))
	}

	m := map[string]interface{}{
		"location":       r.Location,
		"origin":         coordinatesMap(r.Origin),
		"evaluatedAt":    r.EvaluatedAt.Format(time.RFC3339),
		"degraded":       r.Degraded,
		"failedStations": r.FailedStations,
		"stations":       stations,
	}
	if r.Reference != nil {
		m["reference"] = coordinatesMap(*r.Reference)
	}
	return m
}
