package models

import "time"

const NoDescription = "No description available"

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Station is a transit stop returned by the nearby search. ID is the
// provider's place id.
type Station struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coordinates"`
	Description *string     `json:"description,omitempty"`
}

// RouteDeparture is one transit line visit extracted from a directions query.
// DepartureInstant is nil when neither the epoch value nor the text could be
// normalized.
type RouteDeparture struct {
	Line             string     `json:"line"`
	DepartureInstant *time.Time `json:"departureInstant"`
	RawText          string     `json:"rawText"`
	TimeZone         *string    `json:"timeZone,omitempty"`
	EpochValue       *int64     `json:"epochValue,omitempty"`
}

func (r RouteDeparture) Parsed() bool {
	return r.DepartureInstant != nil
}

type EnrichedStation struct {
	Station
	Routes                []RouteDeparture `json:"routes"`
	NextDeparture         *RouteDeparture  `json:"nextDeparture"`
	DistanceFromReference *float64         `json:"distanceFromReference"`
	EnrichmentFailed      bool             `json:"enrichmentFailed"`
}

// SearchResult is the snapshot produced by one pipeline invocation. It is
// never mutated after being returned; filtering derives new slices.
type SearchResult struct {
	Location       string            `json:"location"`
	Origin         Coordinates       `json:"origin"`
	Reference      *Coordinates      `json:"reference,omitempty"`
	Stations       []EnrichedStation `json:"stations"`
	Degraded       bool              `json:"degraded"`
	FailedStations int               `json:"failedStations"`
	EvaluatedAt    time.Time         `json:"evaluatedAt"`
}
