package metar

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Airport is one element of the airport listing.
type Airport struct {
	ICAO string `json:"icao"`
	Name string `json:"name,omitempty"`
}

// Value holds the textual form of a JSON scalar exactly as the backend sent
// it. Numbers keep their literal, strings are unquoted and null is empty.
type Value string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
	case '{', '[':
		return fmt.Errorf("metar: expected scalar value, got %s", data)
	default:
		*v = Value(data)
	}
	return nil
}

// String returns the value as received.
func (v Value) String() string {
	return string(v)
}

// Observation is a decoded METAR observation for one station.
type Observation struct {
	ICAO          string `json:"icao"`
	Name          Value  `json:"name"`
	Temperature   Value  `json:"temperature"`
	DewPoint      Value  `json:"dewpoint"`
	Humidity      Value  `json:"humidity"`
	WindDirection Value  `json:"wind_direction"`
	WindSpeed     Value  `json:"wind_speed"`
	Visibility    Value  `json:"visibility"`
	Weather       Value  `json:"weather"`
	QNH           Value  `json:"qnh"`
}
