package airquality

import (
	"errors"
	"fmt"
)

// Failure domains of the pipeline. Callers match them with errors.Is.
var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamRejected    = errors.New("upstream rejected request")
	ErrMalformedTimestamp  = errors.New("malformed observation timestamp")
	ErrStorageWrite        = errors.New("archive write failed")
	ErrDatabase            = errors.New("database operation failed")
)

// RejectedError carries the provider-reported message for a non-ok payload.
type RejectedError struct {
	City    string
	Status  string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("api error for %s: status %q: %s", e.City, e.Status, e.Message)
}

// Unwrap lets errors.Is match ErrUpstreamRejected.
func (e *RejectedError) Unwrap() error {
	return ErrUpstreamRejected
}
