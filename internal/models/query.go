package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Query narrows an already built station sequence. It replaces the search
// box and distance slider state of the web client.
type Query struct {
	MaxDistanceKm *float64 `json:"maxDistanceKm,omitempty" validate:"omitempty,gte=0"`
	NameContains  string   `json:"nameContains,omitempty" validate:"max=200"`
}

var validate = validator.New()

func (q Query) Validate() error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (q Query) IsZero() bool {
	return q.MaxDistanceKm == nil && q.NameContains == ""
}
