// Package domain holds the value types and error kinds shared by the
// geocoding and transit gateways and the lookup pipeline.
package domain

import (
	"errors"
	"fmt"
)

// Coordinate is a WGS 84 position.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Latitude, c.Longitude)
}

// StopPoint is a named place where transit vehicles stop.
type StopPoint struct {
	ID         string `json:"id"`
	CommonName string `json:"commonName"`
}

var (
	// ErrMalformedBaseURL is returned when a configured service URL is not an absolute URL.
	ErrMalformedBaseURL = errors.New("malformed base url")
	// ErrNetwork is returned when the transport could not complete a request.
	ErrNetwork = errors.New("network error")
	// ErrHTTPStatus is returned when an upstream answered with a non-200 status.
	ErrHTTPStatus = errors.New("unexpected http status")
	// ErrLocationNotFound is returned when a postcode could not be geocoded.
	ErrLocationNotFound = errors.New("location not found")
	// ErrNoStopsFound is returned when no stop points were found near a coordinate.
	ErrNoStopsFound = errors.New("no stops found")
)

// LocationNotFoundError reports a postcode that could not be resolved.
type LocationNotFoundError struct {
	Postcode string
	Err      error
}

func (e *LocationNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("location not found for postcode %q: %v", e.Postcode, e.Err)
	}
	return fmt.Sprintf("location not found for postcode %q", e.Postcode)
}

func (e *LocationNotFoundError) Unwrap() error { return e.Err }

// Is reports ErrLocationNotFound as a match.
func (e *LocationNotFoundError) Is(target error) bool { return target == ErrLocationNotFound }

// NoStopsFoundError reports a stop search that produced nothing usable.
type NoStopsFoundError struct {
	Coordinate Coordinate
	Count      int
	Err        error
}

func (e *NoStopsFoundError) Error() string {
	msg := fmt.Sprintf("no stops found near %s (requested %d)", e.Coordinate, e.Count)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *NoStopsFoundError) Unwrap() error { return e.Err }

// Is reports ErrNoStopsFound as a match.
func (e *NoStopsFoundError) Is(target error) bool { return target == ErrNoStopsFound }
