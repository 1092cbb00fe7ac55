package webhook

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingWebhookURL is a client error: the request carried no target.
	ErrMissingWebhookURL = errors.New("missing webhookUrl")
	// ErrEmptyFile is returned when an upload carries no file data.
	ErrEmptyFile = errors.New("file payload is empty")
	// ErrInvalidEncoding is returned when file data is not valid base64.
	ErrInvalidEncoding = errors.New("file payload is not valid base64")
	// ErrUnsupportedRequest is returned for an OutboundRequest the encoder does not know.
	ErrUnsupportedRequest = errors.New("unsupported outbound request")
)

// TransportError means no HTTP response was obtained at all (dial, DNS, TLS,
// timeout, connection reset before headers). It is the only error class that
// triggers a relay fallback.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure calling %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err (or anything it wraps) is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
