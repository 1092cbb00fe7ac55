package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/telhawk-systems/hookrelay/common/logging"
	"github.com/telhawk-systems/hookrelay/common/middleware"
	"github.com/telhawk-systems/hookrelay/relay/internal/metrics"
	"github.com/telhawk-systems/hookrelay/relay/internal/models"
	"github.com/telhawk-systems/hookrelay/relay/pkg/webhook"
)

// RelayService performs the single outbound webhook call behind every relay route.
type RelayService struct {
	forwarder *webhook.Forwarder
	recorders []NamedRecorder
	logger    *logging.Logger
	userAgent string
	now       func() time.Time
}

// Option configures a RelayService.
type Option func(*RelayService)

// WithRecorders adds delivery side channels.
func WithRecorders(recorders ...NamedRecorder) Option {
	return func(s *RelayService) {
		s.recorders = append(s.recorders, recorders...)
	}
}

// WithUserAgent overrides the per-class User-Agent.
func WithUserAgent(ua string) Option {
	return func(s *RelayService) {
		s.userAgent = ua
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *RelayService) {
		s.now = now
	}
}

// NewRelayService creates a service forwarding through forwarder.
func NewRelayService(forwarder *webhook.Forwarder, logger *logging.Logger, opts ...Option) *RelayService {
	if logger == nil {
		logger = logging.Default()
	}
	s := &RelayService{
		forwarder: forwarder,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Relay forwards a validated request to its webhook exactly once and builds the
// envelope returned to the caller. It never panics and never returns nil.
func (s *RelayService) Relay(ctx context.Context, class webhook.Class, req *webhook.RelayRequest, clientIP string) (env *webhook.RelayEnvelope) {
	start := s.now()
	delivery := models.NewDelivery(middleware.GetRequestID(ctx), string(class.Kind), req.WebhookURL, clientIP)
	log := s.logger.With(logging.Kind(string(class.Kind)), logging.Webhook(req.WebhookURL))

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "panic while relaying", "panic", fmt.Sprint(r))
			env = s.internalError(class, fmt.Sprint(r))
			delivery.Error = env.Error
			s.finish(ctx, class, delivery, start, metrics.OutcomeInternal)
		}
	}()

	outbound := s.outboundRequest(ctx, class, req, log)
	log.InfoContext(ctx, "relaying request", logging.Shape(outbound))

	enc, err := webhook.Encode(outbound, start)
	if err != nil {
		log.ErrorContext(ctx, "failed to encode payload", logging.Shape(outbound), logging.Error(err))
		delivery.Error = err.Error()
		s.finish(ctx, class, delivery, start, metrics.OutcomeInternal)
		return s.internalError(class, err.Error())
	}
	delivery.FileBytes = enc.FileBytes

	if class.IsFile() && req.FileSize != nil && *req.FileSize != enc.FileBytes {
		log.WarnContext(ctx, "declared file size differs from decoded size",
			"declared", *req.FileSize,
			logging.Bytes(enc.FileBytes))
	}

	userAgent := s.userAgent
	if userAgent == "" {
		userAgent = class.UserAgent
	}

	forwardStart := s.now()
	raw, err := s.forwarder.Forward(ctx, req.WebhookURL, enc, userAgent)
	metrics.ForwardDuration.WithLabelValues(string(class.Kind)).Observe(s.now().Sub(forwardStart).Seconds())
	if err != nil {
		outcome := metrics.OutcomeInternal
		if webhook.IsTransportError(err) {
			outcome = metrics.OutcomeTransport
			metrics.TransportErrors.WithLabelValues(string(class.Kind)).Inc()
		}
		log.ErrorContext(ctx, "webhook call failed", logging.Shape(outbound), logging.Error(err))
		delivery.Error = err.Error()
		s.finish(ctx, class, delivery, start, outcome)
		return s.internalError(class, err.Error())
	}

	delivery.HTTPStatus = raw.HTTPStatus
	metrics.RemoteStatusTotal.WithLabelValues(string(class.Kind), strconv.Itoa(raw.HTTPStatus)).Inc()
	log.InfoContext(ctx, "webhook responded",
		logging.Status(raw.HTTPStatus),
		logging.Bytes(int64(len(raw.BodyText))),
		logging.Duration(s.now().Sub(forwardStart)))

	if !raw.OK() {
		detail := fmt.Sprintf("n8n webhook returned %d: %s", raw.HTTPStatus, raw.StatusText)
		log.WarnContext(ctx, "webhook returned an error status", logging.Status(raw.HTTPStatus))
		delivery.Error = detail
		s.finish(ctx, class, delivery, start, metrics.OutcomeRemoteError)
		return &webhook.RelayEnvelope{
			Success: false,
			Error:   detail,
			Details: webhook.RemoteErrorDetails{
				Status:     raw.HTTPStatus,
				StatusText: raw.StatusText,
				WebhookURL: req.WebhookURL,
			},
			Timestamp: webhook.FormatTimestamp(s.now()),
			Source:    class.ResponseSource,
		}
	}

	delivery.Success = true
	s.finish(ctx, class, delivery, start, metrics.OutcomeSuccess)

	env = &webhook.RelayEnvelope{
		Success:   true,
		Data:      webhook.EnvelopeData(raw.BodyText),
		Timestamp: webhook.FormatTimestamp(s.now()),
		Source:    class.ResponseSource,
	}
	if class.IsFile() {
		env.WebhookURL = req.WebhookURL
		env.FileName = enc.FileName
		size := enc.FileBytes
		if req.FileSize != nil {
			size = *req.FileSize
		}
		env.FileSize = &size
	}
	return env
}

func (s *RelayService) outboundRequest(ctx context.Context, class webhook.Class, req *webhook.RelayRequest, log *logging.Logger) webhook.OutboundRequest {
	sentAt := s.now()
	if req.Timestamp != "" {
		if ts, ok := webhook.ParseTimestamp(req.Timestamp); ok {
			sentAt = ts
		} else {
			log.WarnContext(ctx, "ignoring unparseable timestamp", "timestamp", req.Timestamp)
		}
	}

	if !class.IsFile() {
		source := req.Source
		if source == "" {
			source = class.Provenance
		}
		return webhook.ChatRequest{Text: req.Message, SentAt: sentAt, SourceTag: source}
	}

	var size int64
	if req.FileSize != nil {
		size = *req.FileSize
	}
	return webhook.FileRequest{
		FileKind:  class.Kind,
		Data:      req.File,
		FileName:  req.FileName,
		MimeType:  req.FileType,
		SizeBytes: size,
		SentAt:    sentAt,
		SourceTag: class.Provenance,
	}
}

func (s *RelayService) internalError(class webhook.Class, detail string) *webhook.RelayEnvelope {
	return &webhook.RelayEnvelope{
		Success:   false,
		Error:     class.InternalError,
		Details:   detail,
		Timestamp: webhook.FormatTimestamp(s.now()),
		Source:    class.ResponseSource,
	}
}

// finish records metrics and hands the delivery to every recorder. Recorder
// failures are logged and never change the caller's result.
func (s *RelayService) finish(ctx context.Context, class webhook.Class, d *models.Delivery, start time.Time, outcome string) {
	end := s.now()
	d.CompletedAt = end.UTC()
	d.Duration = end.Sub(start)

	kind := string(class.Kind)
	metrics.RequestsTotal.WithLabelValues(kind, outcome).Inc()
	metrics.RequestDuration.WithLabelValues(kind).Observe(d.Duration.Seconds())
	if d.FileBytes > 0 {
		metrics.UploadBytesTotal.WithLabelValues(kind).Add(float64(d.FileBytes))
	}

	if len(s.recorders) == 0 {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, r := range s.recorders {
		if err := record(recordCtx, r.Recorder, d); err != nil {
			metrics.RecorderErrors.WithLabelValues(r.Name).Inc()
			s.logger.WarnContext(ctx, "failed to record delivery",
				"recorder", r.Name,
				logging.Error(err))
		}
	}
}

func record(ctx context.Context, r DeliveryRecorder, d *models.Delivery) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("recorder panic: %v", p)
		}
	}()
	return r.RecordDelivery(ctx, d)
}
