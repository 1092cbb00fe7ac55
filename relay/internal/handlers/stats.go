package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/telhawk-systems/hookrelay/common/httputil"
	"github.com/telhawk-systems/hookrelay/common/logging"
	"github.com/telhawk-systems/hookrelay/common/relaystats"
	"github.com/telhawk-systems/hookrelay/relay/internal/audit"
)

// StatsReader reads per-webhook usage counters.
type StatsReader interface {
	GetStats(ctx context.Context, webhook string) (*relaystats.Stats, error)
	ListActiveWebhooks(ctx context.Context, since time.Duration) ([]string, error)
}

// DeliveryLister reads the audit log.
type DeliveryLister interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Record, error)
}

type StatsHandler struct {
	stats      StatsReader
	deliveries DeliveryLister
	logger     *logging.Logger
}

// NewStatsHandler creates the read-only stats API. Either source may be nil, in
// which case its endpoint answers 404.
func NewStatsHandler(stats StatsReader, deliveries DeliveryLister, logger *logging.Logger) *StatsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StatsHandler{stats: stats, deliveries: deliveries, logger: logger}
}

// WebhookStats serves GET /api/webhook/stats. With ?webhookUrl= it returns that
// webhook's counters, otherwise the webhooks used in the last 24 hours.
func (h *StatsHandler) WebhookStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if h.stats == nil {
		httputil.WriteError(w, http.StatusNotFound, "Webhook statistics are not enabled")
		return
	}

	ctx := r.Context()
	target := r.URL.Query().Get("webhookUrl")
	if target == "" {
		webhooks, err := h.stats.ListActiveWebhooks(ctx, 24*time.Hour)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to list active webhooks", logging.Error(err))
			httputil.WriteError(w, http.StatusInternalServerError, "Failed to read webhook statistics")
			return
		}
		if webhooks == nil {
			webhooks = []string{}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"webhooks": webhooks})
		return
	}

	if relaystats.WebhookKey(target) == "" {
		httputil.WriteError(w, http.StatusBadRequest, "webhookUrl must be an absolute URL")
		return
	}
	stats, err := h.stats.GetStats(ctx, target)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read webhook stats",
			logging.Webhook(target),
			logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to read webhook statistics")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// Deliveries serves GET /api/deliveries?limit=N from the audit log.
func (h *StatsHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if h.deliveries == nil {
		httputil.WriteError(w, http.StatusNotFound, "Delivery audit log is not enabled")
		return
	}

	ctx := r.Context()
	records, err := h.deliveries.ListRecent(ctx, httputil.ParseLimit(r, 50, 500))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list deliveries", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to read deliveries")
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"deliveries": records,
		"count":      len(records),
	})
}
