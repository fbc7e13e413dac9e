package upstream

import "errors"

// Domain-specific errors for the upstream driver.
var (
	// ErrInvalidURL is returned when the upstream URL is missing or not http(s).
	ErrInvalidURL = errors.New("upstream: invalid server URL")

	// ErrBadResponse is returned when the upstream reply is not a protocol response.
	ErrBadResponse = errors.New("upstream: malformed response")

	// ErrUnavailable is returned when the upstream server cannot be reached.
	ErrUnavailable = errors.New("upstream: server unavailable")
)
