package transport

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse marks a response that violates the protocol. Polling
// treats it as structural and stops instead of retrying.
var ErrMalformedResponse = errors.New("malformed response")

// Error is returned for a request that did not produce a usable response.
type Error struct {
	Op  string // HTTP method
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsStructural reports whether err is a protocol violation rather than a
// transient network failure.
func IsStructural(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}

var malformedMessageTokens = []string{
	"malformed http",
	"bad content-length",
	"invalid content-length",
}

// classifyDoError wraps protocol errors surfaced by net/http so they are
// recognised as structural.
func classifyDoError(err error) error {
	lower := strings.ToLower(err.Error())
	for _, token := range malformedMessageTokens {
		if strings.Contains(lower, token) {
			return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
	}
	return err
}
