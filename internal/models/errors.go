package models

import "errors"

var (
	// ErrUpstreamUnavailable is returned when a provider reports a non-success
	// status or cannot be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrNotFound marks an empty geocode result.
	ErrNotFound     = errors.New("not found")
	ErrParseFailure = errors.New("parse failure")
	ErrInvalidInput = errors.New("invalid input")
	// ErrSuperseded is returned by a search that was replaced by a newer one
	// for the same session before it finished.
	ErrSuperseded = errors.New("search superseded")
)
