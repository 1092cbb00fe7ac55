// Package webhook implements the relay protocol shared by the relay service and its
// clients: payload encoding, forwarding to a remote workflow webhook, response
// normalization and the direct-then-relay transport selection.
package webhook

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the content class of an outbound request.
type Kind string

const (
	KindChat  Kind = "chat"
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Path records which transport path produced a result.
type Path string

const (
	PathDirect Path = "direct"
	PathRelay  Path = "relay"
)

// OutboundRequest is either a ChatRequest or a FileRequest.
type OutboundRequest interface {
	ContentKind() Kind
	// Shape is a short description of the payload used in logs. It never includes content.
	Shape() string
}

// ChatRequest is a text message sent to the workflow.
type ChatRequest struct {
	Text      string
	SentAt    time.Time
	SourceTag string
}

func (ChatRequest) ContentKind() Kind { return KindChat }

func (r ChatRequest) Shape() string {
	return "chat(chars=" + strconv.Itoa(len([]rune(r.Text))) + ")"
}

// FileRequest is a file upload. Data holds the file as base64, optionally prefixed
// with a data-URL header; it is decoded by the encoder.
type FileRequest struct {
	FileKind  Kind
	Data      string
	FileName  string
	MimeType  string
	SizeBytes int64
	SentAt    time.Time
	SourceTag string
}

func (r FileRequest) ContentKind() Kind { return r.FileKind }

func (r FileRequest) Shape() string {
	return string(r.FileKind) + "(name=" + r.FileName + ", encoded_len=" + strconv.Itoa(len(r.Data)) + ")"
}

// TargetEndpoint is the remote webhook a single request is addressed to.
type TargetEndpoint struct {
	URL string
}

// Validate reports ErrMissingWebhookURL when no URL was supplied.
func (t TargetEndpoint) Validate() error {
	if strings.TrimSpace(t.URL) == "" {
		return ErrMissingWebhookURL
	}
	return nil
}

// RawRemoteResponse is the complete, uninterpreted answer of a webhook or relay.
type RawRemoteResponse struct {
	HTTPStatus int
	StatusText string
	BodyText   string
	Headers    http.Header
}

// OK reports whether the status is 2xx.
func (r *RawRemoteResponse) OK() bool {
	return r.HTTPStatus >= 200 && r.HTTPStatus < 300
}

// NormalizedResult is the only value handed back to callers of the protocol.
type NormalizedResult struct {
	OK           bool      `json:"ok"`
	Message      string    `json:"message,omitempty"`
	RawPayload   any       `json:"rawPayload,omitempty"`
	ErrorDetail  string    `json:"errorDetail,omitempty"`
	EndpointUsed string    `json:"endpointUsed"`
	Path         Path      `json:"path,omitempty"`
	HTTPStatus   int       `json:"httpStatus,omitempty"`
	FellBack     bool      `json:"fellBack,omitempty"`
	DirectError  string    `json:"directError,omitempty"`
	CompletedAt  time.Time `json:"completedAt"`
}

// Display returns the text a UI should show for the result.
func (r NormalizedResult) Display() string {
	if r.OK {
		return r.Message
	}
	return r.ErrorDetail
}

// ISO8601 matches the millisecond UTC timestamps browsers produce.
const ISO8601 = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t as ISO-8601 in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(ISO8601)
}

// ParseTimestamp accepts RFC 3339 timestamps with or without fractional seconds.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
