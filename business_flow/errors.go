// Package businessflow contains the core business logic for customer identity resolution
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Customer-related errors
	ErrCustomerNotFound      = errors.New("customer not found")
	ErrCustomerAlreadyExists = errors.New("customer already exists for this app and scoped ID")

	// Validation errors
	ErrScopedIDRequired   = errors.New("scoped_id is required")
	ErrPlatformInvalid    = errors.New("platform must be instagram or facebook")
	ErrAppIDRequired      = errors.New("app_id is required")
	ErrCustomerIDRequired = errors.New("customer_id is required")
	ErrUpdateRequired     = errors.New("at least one field must be provided for update")

	// Profile fetch errors
	ErrAccessTokenMissing  = errors.New("customer has no access token")
	ErrTokenRejected       = errors.New("access token rejected by the Graph API")
	ErrProfileNotFound     = errors.New("profile not found on the Graph API")
	ErrRateLimited         = errors.New("graph api rate limited")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// StoreConflict means the unique constraint fired and the
	// retry-as-update path still found no row. It should never happen;
	// its appearance indicates a store-level bug.
	ErrStoreConflict = errors.New("unresolved uniqueness conflict")

	ErrCacheNotAvailable = errors.New("cache not available")
)

// ErrorKind classifies business errors for transport status mapping
type ErrorKind string

const (
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindConflict        ErrorKind = "CONFLICT"
	KindUnauthorized    ErrorKind = "UNAUTHORIZED"
	KindRateLimited     ErrorKind = "RATE_LIMITED"
	KindUnavailable     ErrorKind = "UNAVAILABLE"
	KindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
	KindInternal        ErrorKind = "INTERNAL"
)

// KindOf maps an error to its taxonomy kind. Errors outside the taxonomy
// are internal: their text never crosses a transport boundary.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrCustomerNotFound), errors.Is(err, ErrProfileNotFound):
		return KindNotFound
	case errors.Is(err, ErrCustomerAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrTokenRejected):
		return KindUnauthorized
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrCacheNotAvailable):
		return KindUnavailable
	case errors.Is(err, ErrScopedIDRequired),
		errors.Is(err, ErrPlatformInvalid),
		errors.Is(err, ErrAppIDRequired),
		errors.Is(err, ErrCustomerIDRequired),
		errors.Is(err, ErrUpdateRequired),
		errors.Is(err, ErrAccessTokenMissing):
		return KindInvalidArgument
	default:
		// ErrStoreConflict lands here on purpose: it is surfaced as a
		// generic internal failure after being logged.
		return KindInternal
	}
}

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsCustomerNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound)
}

func IsCustomerAlreadyExists(err error) bool {
	return errors.Is(err, ErrCustomerAlreadyExists)
}

func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func IsTokenRejected(err error) bool {
	return errors.Is(err, ErrTokenRejected)
}

func IsAccessTokenMissing(err error) bool {
	return errors.Is(err, ErrAccessTokenMissing)
}

func IsUpstreamUnavailable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}

func IsStoreConflict(err error) bool {
	return errors.Is(err, ErrStoreConflict)
}

func IsCacheNotAvailable(err error) bool {
	return errors.Is(err, ErrCacheNotAvailable)
}
