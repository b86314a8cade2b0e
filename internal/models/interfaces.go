package models

import "context"

type Geocoder interface {
	Resolve(ctx context.Context, address string) (Coordinates, error)
}

type StationLocator interface {
	FindNearby(ctx context.Context, origin Coordinates, radiusMeters int, stationType string) ([]Station, error)
}
