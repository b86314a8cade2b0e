package models

// Google Maps web service payloads. Only the fields the pipeline reads are
// declared.

const (
	StatusOK          = "OK"
	StatusZeroResults = "ZERO_RESULTS"
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Geometry struct {
	Location LatLng `json:"location"`
}

type GeocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Results      []struct {
		FormattedAddress string   `json:"formatted_address"`
		Geometry         Geometry `json:"geometry"`
	} `json:"results"`
}

type PlaceResult struct {
	PlaceID  string   `json:"place_id"`
	Name     string   `json:"name"`
	Geometry Geometry `json:"geometry"`
	Vicinity string   `json:"vicinity"`
}

type PlacesResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Results      []PlaceResult `json:"results"`
}

type TransitTime struct {
	Text     string `json:"text"`
	TimeZone string `json:"time_zone"`
	Value    int64  `json:"value"`
}

type TransitLine struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
}

type TransitDetails struct {
	Line          TransitLine `json:"line"`
	DepartureTime TransitTime `json:"departure_time"`
	ArrivalTime   TransitTime `json:"arrival_time"`
	Headsign      string      `json:"headsign"`
}

type DirectionsStep struct {
	TravelMode     string          `json:"travel_mode"`
	TransitDetails *TransitDetails `json:"transit_details,omitempty"`
}

type DirectionsLeg struct {
	Steps []DirectionsStep `json:"steps"`
}

type DirectionsRoute struct {
	Legs []DirectionsLeg `json:"legs"`
}

type DirectionsResponse struct {
	Status       string            `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Routes       []DirectionsRoute `json:"routes"`
}
