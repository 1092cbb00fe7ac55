package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/hookrelay/common/middleware"
)

// DefaultTimeout bounds a single outbound call when the caller configures none.
const DefaultTimeout = 60 * time.Second

// Forwarder performs exactly one POST to a webhook and captures the full response.
type Forwarder struct {
	httpClient *http.Client
}

// NewForwarder constructs a Forwarder. A non-positive timeout selects DefaultTimeout.
func NewForwarder(timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Forwarder{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewForwarderWithClient wraps an existing client.
func NewForwarderWithClient(client *http.Client) *Forwarder {
	return &Forwarder{httpClient: client}
}

// Forward posts enc to url. Failing to obtain any HTTP response returns a
// *TransportError. Any status code, 2xx or not, is a successful forward.
func (f *Forwarder) Forward(ctx context.Context, url string, enc *Encoded, userAgent string) (*RawRemoteResponse, error) {
	if f == nil {
		return nil, fmt.Errorf("forwarder not configured")
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(enc.Body))
	if err != nil {
		// A malformed URL never reaches the network.
		return nil, &TransportError{URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	request.Header.Set("Content-Type", enc.ContentType)
	request.Header.Set("Accept", "application/json")
	if userAgent != "" {
		request.Header.Set("User-Agent", userAgent)
	}
	if reqID := middleware.GetRequestID(ctx); reqID != "" {
		request.Header.Set(middleware.HeaderRequestID, reqID)
	}

	resp, err := f.httpClient.Do(request)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body from %s: %w", url, err)
	}

	return &RawRemoteResponse{
		HTTPStatus: resp.StatusCode,
		StatusText: statusText(resp),
		BodyText:   string(body),
		Headers:    resp.Header.Clone(),
	}, nil
}

// statusText returns the reason phrase the server sent, or the canonical one.
func statusText(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
