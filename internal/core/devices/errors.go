package devices

import (
	"errors"

	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

// Common device errors
var (
	ErrSelfLink        = errors.New("device cannot be linked to itself")
	ErrReadOnlyField   = errors.New("field is read-only")
	ErrUnknownProperty = errors.New("unknown device property")
	ErrInvalidValue    = errors.New("invalid property value")
)

func notFound(id string) error {
	return apperrors.NotFound("device", id)
}

func invalid(format string, args ...interface{}) error {
	return apperrors.Invalid("device", format, args...)
}
