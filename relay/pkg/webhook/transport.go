package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/telhawk-systems/hookrelay/common/logging"
)

// Deliverer sends one request along one path and returns the raw answer.
type Deliverer interface {
	Deliver(ctx context.Context, req OutboundRequest, target TargetEndpoint) (*RawRemoteResponse, error)
	// Endpoint is the URL the deliverer will call for req.
	Endpoint(req OutboundRequest, target TargetEndpoint) string
}

// DirectDeliverer calls the webhook itself.
type DirectDeliverer struct {
	Forwarder *Forwarder
	// UserAgent identifies the caller. When empty, the class User-Agent is sent.
	UserAgent string
	Now       func() time.Time
}

// NewDirectDeliverer returns a DirectDeliverer with its own bounded client.
func NewDirectDeliverer(timeout time.Duration, userAgent string) *DirectDeliverer {
	return &DirectDeliverer{
		Forwarder: NewForwarder(timeout),
		UserAgent: userAgent,
		Now:       time.Now,
	}
}

func (d *DirectDeliverer) Endpoint(_ OutboundRequest, target TargetEndpoint) string {
	return target.URL
}

func (d *DirectDeliverer) Deliver(ctx context.Context, req OutboundRequest, target TargetEndpoint) (*RawRemoteResponse, error) {
	switch r := req.(type) {
	case *ChatRequest:
		if r != nil {
			req = *r
		}
	case *FileRequest:
		if r != nil {
			req = *r
		}
	}
	if chat, ok := req.(ChatRequest); ok && chat.SourceTag == "" {
		chat.SourceTag = SourceChatDirect
		req = chat
	}
	enc, err := Encode(req, now(d.Now))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.ContentKind(), err)
	}
	return d.Forwarder.Forward(ctx, target.URL, enc, d.userAgent(req))
}

func (d *DirectDeliverer) userAgent(req OutboundRequest) string {
	if d.UserAgent != "" {
		return d.UserAgent
	}
	if class, ok := ClassFor(req.ContentKind()); ok {
		return class.UserAgent
	}
	return ""
}

// RelayDeliverer hands the request to a relay service, which performs the
// webhook call server-side.
type RelayDeliverer struct {
	BaseURL   string
	Forwarder *Forwarder
	UserAgent string
}

// NewRelayDeliverer returns a RelayDeliverer for the relay at baseURL.
func NewRelayDeliverer(baseURL string, timeout time.Duration, userAgent string) *RelayDeliverer {
	return &RelayDeliverer{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Forwarder: NewForwarder(timeout),
		UserAgent: userAgent,
	}
}

func (d *RelayDeliverer) Endpoint(req OutboundRequest, _ TargetEndpoint) string {
	class, ok := ClassFor(req.ContentKind())
	if !ok {
		return d.BaseURL
	}
	return d.BaseURL + class.Route
}

func (d *RelayDeliverer) Deliver(ctx context.Context, req OutboundRequest, target TargetEndpoint) (*RawRemoteResponse, error) {
	body, err := NewRelayRequest(req, target)
	if err != nil {
		return nil, err
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal relay request: %w", err)
	}
	enc := &Encoded{Body: buf, ContentType: "application/json"}
	return d.Forwarder.Forward(ctx, d.Endpoint(req, target), enc, d.UserAgent)
}

// FallbackPolicy decides when a direct attempt is followed by a relay attempt.
type FallbackPolicy int

const (
	// FallbackOnTransportError falls back only when the direct call got no response.
	FallbackOnTransportError FallbackPolicy = iota
	// FallbackOnRemoteError also falls back when the direct call got a non-2xx status.
	FallbackOnRemoteError
)

func (p FallbackPolicy) String() string {
	switch p {
	case FallbackOnRemoteError:
		return "remote-error"
	default:
		return "transport-error"
	}
}

// Selector tries the direct path, then at most once the relay path. Attempts are
// sequential and the outcome is always a NormalizedResult.
type Selector struct {
	Direct Deliverer
	// Relay may be nil, in which case there is no fallback.
	Relay  Deliverer
	Policy FallbackPolicy
	Logger *logging.Logger
	Now    func() time.Time
}

// Deliver sends req to target and normalizes the outcome.
func (s *Selector) Deliver(ctx context.Context, req OutboundRequest, target TargetEndpoint) (result NormalizedResult) {
	log := s.logger()
	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "panic during delivery",
				logging.Webhook(target.URL),
				logging.Shape(req),
				"panic", fmt.Sprint(r))
			result = s.failure(target.URL, "", fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := target.Validate(); err != nil {
		return s.failure("", "", err.Error())
	}
	if req == nil {
		return s.failure(target.URL, "", ErrUnsupportedRequest.Error())
	}

	directURL := s.Direct.Endpoint(req, target)
	raw, directErr := s.Direct.Deliver(ctx, req, target)
	if directErr == nil && !s.shouldFallBack(raw) {
		return s.normalize(raw, directURL, PathDirect)
	}
	if directErr != nil && !IsTransportError(directErr) {
		log.ErrorContext(ctx, "direct delivery failed",
			logging.Webhook(target.URL),
			logging.Shape(req),
			logging.Error(directErr))
		return s.failure(directURL, PathDirect, directErr.Error())
	}

	directReason := ""
	if directErr != nil {
		directReason = directErr.Error()
	} else {
		directReason = fmt.Sprintf("n8n webhook returned %d: %s", raw.HTTPStatus, raw.StatusText)
	}

	if s.Relay == nil {
		log.WarnContext(ctx, "direct delivery failed and no relay configured",
			logging.Webhook(target.URL),
			logging.Shape(req),
			"reason", directReason)
		if directErr == nil {
			return s.normalize(raw, directURL, PathDirect)
		}
		return s.failure(directURL, PathDirect, directReason)
	}

	relayURL := s.Relay.Endpoint(req, target)
	log.WarnContext(ctx, "direct delivery failed, falling back to relay",
		logging.Webhook(target.URL),
		logging.Shape(req),
		logging.RelayPath(relayURL),
		"reason", directReason)

	relayRaw, relayErr := s.Relay.Deliver(ctx, req, target)
	if relayErr != nil {
		log.ErrorContext(ctx, "relay delivery failed",
			logging.Webhook(target.URL),
			logging.Shape(req),
			logging.RelayPath(relayURL),
			logging.Error(relayErr))
		res := s.failure(relayURL, PathRelay, fmt.Sprintf("direct: %s; relay: %v", directReason, relayErr))
		res.FellBack = true
		res.DirectError = directReason
		return res
	}

	res := s.normalize(relayRaw, relayURL, PathRelay)
	res.FellBack = true
	res.DirectError = directReason
	return res
}

func (s *Selector) shouldFallBack(raw *RawRemoteResponse) bool {
	return s.Policy == FallbackOnRemoteError && raw != nil && !raw.OK()
}

func (s *Selector) normalize(raw *RawRemoteResponse, endpoint string, path Path) NormalizedResult {
	return Normalize(raw, NormalizeOptions{Endpoint: endpoint, Path: path, Now: now(s.Now)})
}

func (s *Selector) failure(endpoint string, path Path, detail string) NormalizedResult {
	return NormalizedResult{
		ErrorDetail:  detail,
		EndpointUsed: endpoint,
		Path:         path,
		CompletedAt:  now(s.Now).UTC(),
	}
}

func (s *Selector) logger() *logging.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logging.Default()
}

// DescribeFailure lists the usual causes when both paths failed.
func DescribeFailure(res NormalizedResult) []string {
	if res.OK || res.HTTPStatus != 0 {
		return nil
	}
	unreachable := res.FellBack || strings.HasPrefix(res.ErrorDetail, "transport failure")
	if !unreachable {
		return nil
	}
	return []string{
		"the workflow may not be active",
		"the webhook URL may be incorrect",
		"the relay may be unreachable from this machine",
	}
}

func now(fn func() time.Time) time.Time {
	if fn == nil {
		return time.Now()
	}
	return fn()
}
