package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/bbernstein/busstops/backend-go/internal/geo"
	"github.com/bbernstein/busstops/backend-go/internal/geocode"
	"github.com/bbernstein/busstops/backend-go/internal/models"
	"github.com/bbernstein/busstops/backend-go/internal/station"
)

const (
	MsgGeocodingFailed = "Geocoding failed"
	MsgStopsFailed     = "Failed to fetch bus stops from Google Maps API"
	MsgInternal        = "Internal Server Error"
	MsgSuperseded      = "Search superseded by a newer request"
)

// SessionHeader identifies the client session whose newer searches
// supersede older ones.
const SessionHeader = "X-Session-Id"

const maxRadiusMeters = 50000

type APIResponse struct {
	ResponseType string `json:"responseType"`
}

type StopsResponse struct {
	APIResponse
	Location       string                   `json:"location"`
	Origin         models.Coordinates       `json:"origin"`
	Reference      *models.Coordinates      `json:"reference,omitempty"`
	EvaluatedAt    time.Time                `json:"evaluatedAt"`
	Degraded       bool                     `json:"degraded"`
	FailedStations int                      `json:"failedStations"`
	Stations       []models.EnrichedStation `json:"stations"`
}

type ErrorResponse struct {
	APIResponse
	Error string `json:"error"`
}

func NewStopsResponse(result *models.SearchResult) *StopsResponse {
	stations := result.Stations
	if stations == nil {
		stations = []models.EnrichedStation{}
	}
	return &StopsResponse{
		APIResponse:    APIResponse{ResponseType: "stops"},
		Location:       result.Location,
		Origin:         result.Origin,
		Reference:      result.Reference,
		EvaluatedAt:    result.EvaluatedAt,
		Degraded:       result.Degraded,
		FailedStations: result.FailedStations,
		Stations:       stations,
	}
}

func NewErrorResponse(message string) *ErrorResponse {
	return &ErrorResponse{
		APIResponse: APIResponse{ResponseType: "error"},
		Error:       message,
	}
}

var defaultHeaders = map[string]string{
	"Content-Type":                 "application/json",
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type, " + SessionHeader,
	"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
}

func headers() map[string]string {
	h := make(map[string]string, len(defaultHeaders))
	for k, v := range defaultHeaders {
		h[k] = v
	}
	return h
}

// Response helpers
func Success(body interface{}) (events.APIGatewayProxyResponse, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Error(MsgInternal, http.StatusInternalServerError)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    headers(),
		Body:       string(jsonBody),
	}, nil
}

// Preflight answers a CORS preflight request without running a search.
func Preflight() (events.APIGatewayProxyResponse, error) {
	h := headers()
	h["Access-Control-Max-Age"] = "600"
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusNoContent,
		Headers:    h,
	}, nil
}

// CORSHeaders returns a copy of the headers sent with every response.
func CORSHeaders() map[string]string {
	return headers()
}

func Error(message string, statusCode int) (events.APIGatewayProxyResponse, error) {
	body, _ := json.Marshal(NewErrorResponse(message))

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    headers(),
		Body:       string(body),
	}, nil
}

// ErrorStatus maps a pipeline error to the status code and message returned
// to clients.
func ErrorStatus(err error) (int, string) {
	var geoErr *geocode.GeocodeError
	var locErr *station.LocatorError

	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrSuperseded):
		return http.StatusConflict, MsgSuperseded
	case errors.As(err, &geoErr):
		return http.StatusInternalServerError, MsgGeocodingFailed
	case errors.As(err, &locErr):
		return http.StatusBadGateway, MsgStopsFailed
	default:
		return http.StatusInternalServerError, MsgInternal
	}
}

// FromError builds the error response for err.
func FromError(err error) (events.APIGatewayProxyResponse, error) {
	status, message := ErrorStatus(err)
	return Error(message, status)
}

// InvalidParameterError reports a malformed query parameter
type InvalidParameterError struct {
	Name  string
	Value string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Name, e.Value)
}

func (e *InvalidParameterError) Unwrap() error {
	return models.ErrInvalidInput
}

// Parameter parsing helpers

// ParseCoordinates reads the optional lat/lon reference point. Both must be
// present or both absent.
func ParseCoordinates(params map[string]string) (*models.Coordinates, error) {
	latStr, hasLat := params["lat"]
	lonStr, hasLon := params["lon"]

	if !hasLat && !hasLon {
		return nil, nil
	}
	if !hasLat {
		return nil, &InvalidParameterError{Name: "lat", Value: ""}
	}
	if !hasLon {
		return nil, &InvalidParameterError{Name: "lon", Value: ""}
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return nil, &InvalidParameterError{Name: "lat", Value: latStr}
	}

	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return nil, &InvalidParameterError{Name: "lon", Value: lonStr}
	}

	coords := models.Coordinates{Lat: lat, Lng: lon}
	if err := geo.Validate(coords); err != nil {
		return nil, err
	}

	return &coords, nil
}

// ParseQuery reads the maxDistanceKm and name filters.
func ParseQuery(params map[string]string) (models.Query, error) {
	q := models.Query{NameContains: params["name"]}

	if raw, ok := params["maxDistanceKm"]; ok && strings.TrimSpace(raw) != "" {
		d, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return models.Query{}, &InvalidParameterError{Name: "maxDistanceKm", Value: raw}
		}
		q.MaxDistanceKm = &d
	}

	if err := q.Validate(); err != nil {
		return models.Query{}, err
	}
	return q, nil
}

// ParseRadius reads the optional search radius in meters. Zero means default.
func ParseRadius(params map[string]string) (int, error) {
	raw, ok := params["radius"]
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, nil
	}

	radius, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &InvalidParameterError{Name: "radius", Value: raw}
	}
	if err := ValidateRadius(radius); err != nil {
		return 0, err
	}
	return radius, nil
}

// ValidateRadius checks an explicit search radius in meters.
func ValidateRadius(radius int) error {
	if radius <= 0 || radius > maxRadiusMeters {
		return &InvalidParameterError{Name: "radius", Value: strconv.Itoa(radius)}
	}
	return nil
}
