package collyfetcher

import (
	"errors"
	"net/url"
)

// redact strips the URL from *url.Error values so query strings never reach logs.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &redactedError{op: urlErr.Op, err: urlErr.Err}
	}
	return err
}

type redactedError struct {
	op  string
	err error
}

func (e *redactedError) Error() string {
	return e.op + " <redacted>: " + e.err.Error()
}

func (e *redactedError) Unwrap() error {
	return e.err
}
