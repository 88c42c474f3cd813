package metar

import "errors"

var (
	// ErrUnexpectedStatus is returned when the backend answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrEmptyICAO is returned when an observation is requested without an identifier.
	ErrEmptyICAO = errors.New("icao code must not be empty")
	// ErrNoObservation is returned when the backend answers with an empty observation body.
	ErrNoObservation = errors.New("no observation in response")
)
