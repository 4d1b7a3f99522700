package checker

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrNotReady is returned by queries issued before the zone data is loaded.
	ErrNotReady = eris.New("checker: zone data not loaded")
	// ErrInvalidCoordinates rejects a latitude outside [-90,90] or a
	// longitude outside [-180,180].
	ErrInvalidCoordinates = eris.New("checker: coordinates out of range")
	// ErrEmptyAddress rejects a blank address.
	ErrEmptyAddress = eris.New("checker: address is empty")
	// ErrGeocodeUnavailable means the geocoder failed, timed out or is
	// short-circuited. It says nothing about the address itself.
	ErrGeocodeUnavailable = eris.New("checker: geocoding service unavailable")
	// ErrGeocodeAmbiguous means the geocoder found nothing for text that
	// reads like a building or landmark name rather than a street address.
	ErrGeocodeAmbiguous = eris.New("checker: address looks like a place name")
	// ErrAddressNotFound means the geocoder found nothing for a street address.
	ErrAddressNotFound = eris.New("checker: no address match found")
)

// LoadError wraps the fetch or parse failure of an Initialize call.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("checker: load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// GeocodeError carries the cause of a failed geocode. It matches
// ErrGeocodeUnavailable under errors.Is.
type GeocodeError struct {
	Address string
	Err     error
}

func (e *GeocodeError) Error() string {
	return fmt.Sprintf("checker: geocode %q: %v", e.Address, e.Err)
}

func (e *GeocodeError) Unwrap() error { return e.Err }

func (e *GeocodeError) Is(target error) bool { return target == ErrGeocodeUnavailable }

// Stable error codes shared by the API and batch output.
const (
	CodeNotReady           = "not_ready"
	CodeLoadFailed         = "load_failed"
	CodeInvalidInput       = "invalid_input"
	CodeAddressNotFound    = "address_not_found"
	CodeGeocodeAmbiguous   = "geocode_ambiguous"
	CodeGeocodeUnavailable = "geocode_unavailable"
	CodeInternal           = "internal"
)

// Code classifies err. It returns "" for a nil error.
func Code(err error) string {
	var loadErr *LoadError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotReady):
		return CodeNotReady
	case errors.As(err, &loadErr):
		return CodeLoadFailed
	case errors.Is(err, ErrInvalidCoordinates), errors.Is(err, ErrEmptyAddress):
		return CodeInvalidInput
	case errors.Is(err, ErrGeocodeAmbiguous):
		return CodeGeocodeAmbiguous
	case errors.Is(err, ErrAddressNotFound):
		return CodeAddressNotFound
	case errors.Is(err, ErrGeocodeUnavailable):
		return CodeGeocodeUnavailable
	default:
		return CodeInternal
	}
}
