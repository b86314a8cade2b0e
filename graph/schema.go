package graph

import (
	"github.com/graphql-go/graphql"
)

// NewSchema builds the GraphQL schema wired to the resolver.
func NewSchema(r *Resolver) (graphql.Schema, error) {
	coordinatesType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinates",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
			"lng": &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
		},
	})

	departureType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RouteDeparture",
		Fields: graphql.Fields{
			"line":             &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"departureInstant": &graphql.Field{Type: graphql.String, Description: "RFC 3339; null when the time could not be parsed"},
			"rawText":          &graphql.Field{Type: graphql.String},
			"timeZone":         &graphql.Field{Type: graphql.String},
			"epochValue":       &graphql.Field{Type: graphql.Float},
		},
	})

	stopType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Stop",
		Fields: graphql.Fields{
			"id":                    &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"name":                  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"coordinates":           &graphql.Field{Type: graphql.NewNonNull(coordinatesType)},
			"description":           &graphql.Field{Type: graphql.String},
			"routes":                &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(departureType)))},
			"nextDeparture":         &graphql.Field{Type: departureType},
			"distanceFromReference": &graphql.Field{Type: graphql.Float, Description: "Kilometers from the reference point"},
			"enrichmentFailed":      &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
		},
	})

	stopSearchType := graphql.NewObject(graphql.ObjectConfig{
		Name: "StopSearch",
		Fields: graphql.Fields{
			"location":       &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"origin":         &graphql.Field{Type: graphql.NewNonNull(coordinatesType)},
			"reference":      &graphql.Field{Type: coordinatesType},
			"evaluatedAt":    &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"degraded":       &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"failedStations": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"stations":       &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(stopType)))},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"stops": &graphql.Field{
				Type:        stopSearchType,
				Description: "Transit stops near a place with their next departures",
				Args: graphql.FieldConfigArgument{
					"location":      &graphql.ArgumentConfig{Type: graphql.String},
					"lat":           &graphql.ArgumentConfig{Type: graphql.Float},
					"lon":           &graphql.ArgumentConfig{Type: graphql.Float},
					"maxDistanceKm": &graphql.ArgumentConfig{Type: graphql.Float},
					"name":          &graphql.ArgumentConfig{Type: graphql.String},
					"radius":        &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: r.resolveStops,
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}
