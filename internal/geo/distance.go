package geo

import (
	"fmt"
	"math"

	"github.com/bbernstein/busstops/backend-go/internal/models"
)

const earthRadiusKm = 6371.0

// InvalidCoordinateError reports a latitude or longitude outside its range.
type InvalidCoordinateError struct {
	Lat float64
	Lng float64
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinates: lat=%f lng=%f", e.Lat, e.Lng)
}

func (e *InvalidCoordinateError) Unwrap() error {
	return models.ErrInvalidInput
}

// Validate checks lat is within [-90, 90] and lng within [-180, 180].
func Validate(c models.Coordinates) error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) ||
		c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return &InvalidCoordinateError{Lat: c.Lat, Lng: c.Lng}
	}
	return nil
}

// Haversine returns the great-circle distance between a and b in kilometers.
func Haversine(a, b models.Coordinates) (float64, error) {
	if err := Validate(a); err != nil {
		return 0, err
	}
	if err := Validate(b); err != nil {
		return 0, err
	}

	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c, nil
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
