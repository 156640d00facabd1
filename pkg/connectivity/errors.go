package connectivity

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Client matches exactly one of these
// with errors.Is.
var (
	// ErrConfiguration: a required service binding is missing or unusable.
	ErrConfiguration = errors.New("configuration error")
	// ErrTokenAcquisition: the identity service did not issue a token.
	ErrTokenAcquisition = errors.New("token acquisition error")
	// ErrDestinationLookup: the destination service call failed or returned garbage.
	ErrDestinationLookup = errors.New("destination lookup error")
	// ErrCSRFHandshake: the x-csrf-token fetch could not be sent.
	ErrCSRFHandshake = errors.New("csrf handshake error")
	// ErrProxyRequest: the final request could not be sent.
	ErrProxyRequest = errors.New("proxy request error")
)

// Error annotates a failure with the step that produced it.
type Error struct {
	Kind error  // one of the Err* kinds above
	Op   string // step name, e.g. "destination token"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("connectivity: %s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause, so errors.Is against a kind and
// errors.As against the cause (e.g. *oauth2.RetrieveError) both work.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func stepError(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// StatusError is a non-2xx reply from a platform service.
type StatusError struct {
	StatusCode int
	URL        string
	// Message is a preview of the response body.
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// IsStatus reports whether err carries a StatusError with the given code.
// A code of 0 matches any status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return code == 0 || se.StatusCode == code
}
