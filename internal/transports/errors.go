package transports

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden is returned when vendor credentials do not match.
	ErrForbidden = errors.New("transports: forbidden")
	// ErrEncoding is matched by *EncodingError.
	ErrEncoding = errors.New("transports: unencodable content")
	// ErrTransport is matched by *TransportError.
	ErrTransport = errors.New("transports: vendor rejected message")
)

// EncodingError lists the characters the vendor charset cannot carry.
type EncodingError struct {
	Invalid []rune
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("content has %d characters outside GSM 03.38: %q", len(e.Invalid), string(e.Invalid))
}

func (e *EncodingError) Is(target error) bool {
	return target == ErrEncoding
}

// TransportError is a failed vendor call. StatusCode is the HTTP status, 0 if
// the request never completed; ResultCode is the vendor's own code when one
// was returned.
type TransportError struct {
	StatusCode int
	ResultCode string
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.ResultCode != "":
		return fmt.Sprintf("vendor result code %s: %s", e.ResultCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("vendor request failed: %v", e.Err)
	default:
		return fmt.Sprintf("vendor returned HTTP %d: %s", e.StatusCode, e.Message)
	}
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
