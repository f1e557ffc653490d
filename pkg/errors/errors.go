package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

// Common errors
var (
	ErrNotFound       = &AppError{Code: http.StatusNotFound, Message: "Resource not found"}
	ErrBadRequest     = &AppError{Code: http.StatusBadRequest, Message: "Bad request"}
	ErrUnavailable    = &AppError{Code: http.StatusServiceUnavailable, Message: "Service unavailable"}
	ErrInternalServer = &AppError{Code: http.StatusInternalServerError, Message: "Internal server error"}
)

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// WithDetails adds details to an error
func WithDetails(err *AppError, details string) *AppError {
	return &AppError{
		Code:    err.Code,
		Message: err.Message,
		Details: details,
	}
}

// Kind classifies a DomainError.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalid
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// DomainError is returned by registry and engine operations so callers can
// tell a missing entity from a malformed command or a backend hiccup.
type DomainError struct {
	Kind   Kind
	Entity string
	ID     string
	Msg    string
	Err    error
}

func (e *DomainError) Error() string {
	msg := e.Msg
	if msg == "" {
		switch e.Kind {
		case KindNotFound:
			msg = "not found"
		case KindInvalid:
			msg = "invalid"
		case KindTransient:
			msg = "temporarily unavailable"
		default:
			msg = "failed"
		}
	}

	s := e.Entity
	if e.ID != "" {
		s = fmt.Sprintf("%s %s", e.Entity, e.ID)
	}
	if s != "" {
		s = s + ": " + msg
	} else {
		s = msg
	}
	if e.Err != nil {
		s = s + ": " + e.Err.Error()
	}
	return s
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NotFound reports that entity id does not exist.
func NotFound(entity, id string) error {
	return &DomainError{Kind: KindNotFound, Entity: entity, ID: id}
}

// Invalid reports a malformed command for entity.
func Invalid(entity, format string, args ...interface{}) error {
	return &DomainError{Kind: KindInvalid, Entity: entity, Msg: fmt.Sprintf(format, args...)}
}

// Transient wraps a failure that may succeed on retry.
func Transient(entity string, err error) error {
	return &DomainError{Kind: KindTransient, Entity: entity, Err: err}
}

// KindOf returns the kind of the first DomainError in err's chain.
func KindOf(err error) Kind {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is a NotFound DomainError.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsInvalid reports whether err is an Invalid DomainError.
func IsInvalid(err error) bool {
	return KindOf(err) == KindInvalid
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetStatusCode returns the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}

	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalid:
		return http.StatusBadRequest
	case KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
