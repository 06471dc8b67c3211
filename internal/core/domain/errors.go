package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNetworkFailure: a request to a collaborator could not complete.
	ErrNetworkFailure = errors.New("network failure")
	// ErrBackendRejected: the backend answered with a non-success status.
	ErrBackendRejected = errors.New("backend rejected request")
	// ErrOracleUnavailable: the extraction oracle is unreachable or not configured.
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrMalformedOracleOutput: the oracle response did not parse as
	// structured data after fence stripping.
	ErrMalformedOracleOutput = errors.New("malformed oracle output")
	// ErrAttributionMissing: an extraction was attempted with no
	// subject or category to attribute results to.
	ErrAttributionMissing = errors.New("attribution missing")

	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
