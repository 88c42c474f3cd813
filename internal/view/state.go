package view

import (
	"errors"
	"fmt"

	"github.com/eugenenazirov/metar-view/internal/metar"
)

// ErrEmptySelection is returned when Select is called without an identifier.
var ErrEmptySelection = errors.New("selection must not be empty")

// Status is the externally visible rendering state of a view.
type Status int

const (
	// StatusLoading means no observation is published and a fetch is pending.
	StatusLoading Status = iota
	// StatusReady means an observation is published.
	StatusReady
	// StatusUnavailable means no observation is published and the latest fetch failed.
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is a point-in-time copy of a controller's view state.
type State struct {
	Status      Status             `json:"status"`
	Selection   string             `json:"selection"`
	Airports    []string           `json:"airports"`
	Observation *metar.Observation `json:"observation,omitempty"`
	Generation  uint64             `json:"generation"`
	LastError   string             `json:"lastError,omitempty"`
}
