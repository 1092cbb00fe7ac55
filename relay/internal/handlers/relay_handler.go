package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/telhawk-systems/hookrelay/common/httputil"
	"github.com/telhawk-systems/hookrelay/common/logging"
	"github.com/telhawk-systems/hookrelay/relay/internal/metrics"
	"github.com/telhawk-systems/hookrelay/relay/internal/ratelimit"
	"github.com/telhawk-systems/hookrelay/relay/pkg/webhook"
)

// Relayer performs the outbound webhook call for a validated request.
type Relayer interface {
	Relay(ctx context.Context, class webhook.Class, req *webhook.RelayRequest, clientIP string) *webhook.RelayEnvelope
}

type RelayHandler struct {
	relayer      Relayer
	limiter      ratelimit.RateLimiter
	maxBodyBytes int64
	logger       *logging.Logger
	now          func() time.Time
}

func NewRelayHandler(relayer Relayer, limiter ratelimit.RateLimiter, maxBodyBytes int64, logger *logging.Logger) *RelayHandler {
	if limiter == nil {
		limiter = ratelimit.NoOpRateLimiter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RelayHandler{
		relayer:      relayer,
		limiter:      limiter,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
		now:          time.Now,
	}
}

// Handle returns the handler for one relay class. All five routes share it.
func (h *RelayHandler) Handle(class webhook.Class) http.HandlerFunc {
	kind := string(class.Kind)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := h.logger.With(logging.Kind(kind))

		defer func() {
			if p := recover(); p != nil {
				log.ErrorContext(ctx, "panic in relay handler", "panic", fmt.Sprint(p))
				metrics.RequestsTotal.WithLabelValues(kind, metrics.OutcomeInternal).Inc()
				httputil.WriteJSON(w, http.StatusOK, &webhook.RelayEnvelope{
					Error:     class.InternalError,
					Details:   fmt.Sprint(p),
					Timestamp: webhook.FormatTimestamp(h.now()),
					Source:    class.ResponseSource,
				})
			}
		}()

		if r.Method != http.MethodPost {
			metrics.RequestsTotal.WithLabelValues(kind, metrics.OutcomeNotAllowed).Inc()
			httputil.MethodNotAllowed(w, http.MethodPost)
			return
		}

		clientIP := httputil.GetClientIP(r)
		log.InfoContext(ctx, "relay request received",
			logging.Method(r.Method),
			logging.Path(r.URL.Path),
			logging.IP(clientIP))

		body, err := h.readBody(w, r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.reject(ctx, w, kind, http.StatusRequestEntityTooLarge, rejection{
					Error:   "Request body too large",
					Details: fmt.Sprintf("limit is %d bytes", tooLarge.Limit),
				})
				return
			}
			h.reject(ctx, w, kind, http.StatusBadRequest, rejection{
				Error:   "Failed to read request body",
				Details: err.Error(),
			})
			return
		}

		fields, err := decodeFields(body)
		switch {
		case errors.Is(err, errNoBody):
			h.reject(ctx, w, kind, http.StatusBadRequest, rejection{Error: "No request body received"})
			return
		case err != nil:
			h.reject(ctx, w, kind, http.StatusBadRequest, rejection{
				Error:   "Invalid JSON in request body",
				Details: err.Error(),
			})
			return
		}

		if !present(fields[class.ContentField]) {
			h.reject(ctx, w, kind, http.StatusBadRequest, rejection{
				Error: missingContentError(class),
				Received: map[string]any{
					"hasWebhookUrl": hasWebhookURL(fields),
					"hasFileName":   present(fields["fileName"]),
					"hasTimestamp":  present(fields["timestamp"]),
					"bodyKeys":      keys(fields),
				},
			})
			return
		}
		if !hasWebhookURL(fields) {
			received := map[string]any{
				"hasFileName": present(fields["fileName"]),
				"bodyKeys":    keys(fields),
			}
			if class.IsFile() {
				received["hasFile"] = true
			} else {
				received["hasMessage"] = true
			}
			h.reject(ctx, w, kind, http.StatusBadRequest, rejection{
				Error:    "Missing webhookUrl in request body",
				Received: received,
			})
			return
		}

		var req webhook.RelayRequest
		if err := json.Unmarshal(body, &req); err != nil {
			h.reject(ctx, w, kind, http.StatusBadRequest, rejection{
				Error:   "Invalid request body",
				Details: err.Error(),
			})
			return
		}

		allowed, err := h.limiter.Allow(ctx, kind+":"+clientIP)
		if err != nil {
			log.WarnContext(ctx, "rate limiter unavailable, allowing request", logging.Error(err))
			allowed = true
		}
		if !allowed {
			metrics.RateLimitHits.WithLabelValues(kind).Inc()
			metrics.RequestsTotal.WithLabelValues(kind, metrics.OutcomeRateLimited).Inc()
			log.WarnContext(ctx, "rate limit exceeded", logging.IP(clientIP))
			httputil.WriteJSON(w, http.StatusOK, &webhook.RelayEnvelope{
				Error:     "Rate limit exceeded",
				Timestamp: webhook.FormatTimestamp(h.now()),
				Source:    class.ResponseSource,
			})
			return
		}

		httputil.WriteJSON(w, http.StatusOK, h.relayer.Relay(ctx, class, &req, clientIP))
	}
}

// rejection is the body of a 4xx answer.
type rejection struct {
	Success  bool           `json:"success"`
	Error    string         `json:"error"`
	Details  string         `json:"details,omitempty"`
	Received map[string]any `json:"received,omitempty"`
}

func (h *RelayHandler) reject(ctx context.Context, w http.ResponseWriter, kind string, status int, body rejection) {
	metrics.RequestsTotal.WithLabelValues(kind, metrics.OutcomeInvalid).Inc()
	h.logger.WarnContext(ctx, "rejected relay request",
		logging.Kind(kind),
		logging.Status(status),
		logging.Error(errors.New(body.Error)))
	httputil.WriteJSON(w, status, body)
}

func (h *RelayHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	reader := io.Reader(r.Body)
	if h.maxBodyBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	return io.ReadAll(reader)
}

var errNoBody = errors.New("no request body")

// decodeFields parses body as a JSON value. A missing body and a literal null are
// both errNoBody; any other non-object value decodes to an empty field set.
func decodeFields(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errNoBody
	}
	parsed, err := webhook.ParseBody(string(body))
	if err != nil {
		return nil, err
	}
	if parsed == nil {
		return nil, errNoBody
	}
	fields, ok := parsed.(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return fields, nil
}

func missingContentError(class webhook.Class) string {
	if class.IsFile() {
		return "No file uploaded - file field missing"
	}
	return "Missing message in request body"
}

// present reports whether a body field carries a usable value.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	default:
		return true
	}
}

// hasWebhookURL applies webhook.TargetEndpoint's emptiness rule. Non-string
// values fall through to the typed decode.
func hasWebhookURL(fields map[string]any) bool {
	v := fields["webhookUrl"]
	if s, ok := v.(string); ok {
		return webhook.TargetEndpoint{URL: s}.Validate() == nil
	}
	return present(v)
}

func keys(fields map[string]any) []string {
	out := make([]string, 0, len(fields))
	for k := range fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
