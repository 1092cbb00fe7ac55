package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/hookrelay/common/logging"
	"github.com/telhawk-systems/hookrelay/common/relaystats"
	"github.com/telhawk-systems/hookrelay/relay/internal/audit"
)

func newStatsClient(t *testing.T) *relaystats.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return relaystats.NewClientFromRedis(rdb, "test-instance")
}

func TestWebhookStats(t *testing.T) {
	client := newStatsClient(t)
	target := "https://n8n.example.com/webhook/abc?token=secret"

	batch := relaystats.NewBatchUpdate(relaystats.WebhookKey(target))
	batch.Add(relaystats.Outcome{Webhook: target, Kind: "pdf", Success: true, Status: 200, Bytes: 2048, ClientIP: "10.0.0.1"})
	batch.Add(relaystats.Outcome{Webhook: target, Kind: "pdf", Success: false, Status: 500, ClientIP: "10.0.0.2"})
	require.NoError(t, client.FlushBatch(context.Background(), batch))

	h := NewStatsHandler(client, nil, logging.Discard())

	rr := httptest.NewRecorder()
	h.WebhookStats(rr, httptest.NewRequest(http.MethodGet, "/api/webhook/stats?webhookUrl="+url.QueryEscape(target), nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var stats relaystats.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, "n8n.example.com/webhook/abc", stats.Webhook)
	assert.EqualValues(t, 2, stats.TotalDeliveries)
	assert.EqualValues(t, 1, stats.Succeeded)
	assert.EqualValues(t, 1, stats.Failed)
	assert.EqualValues(t, 2048, stats.BytesUploaded)

	rr = httptest.NewRecorder()
	h.WebhookStats(rr, httptest.NewRequest(http.MethodGet, "/api/webhook/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"webhooks":["n8n.example.com/webhook/abc"]}`, rr.Body.String())
}

func TestWebhookStatsErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	NewStatsHandler(nil, nil, logging.Discard()).
		WebhookStats(rr, httptest.NewRequest(http.MethodGet, "/api/webhook/stats", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	h := NewStatsHandler(newStatsClient(t), nil, logging.Discard())

	rr = httptest.NewRecorder()
	h.WebhookStats(rr, httptest.NewRequest(http.MethodGet, "/api/webhook/stats?webhookUrl=not-a-url", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.WebhookStats(rr, httptest.NewRequest(http.MethodPost, "/api/webhook/stats", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

type fakeLister struct {
	limit   int
	records []audit.Record
	err     error
}

func (f *fakeLister) ListRecent(_ context.Context, limit int) ([]audit.Record, error) {
	f.limit = limit
	return f.records, f.err
}

func TestDeliveries(t *testing.T) {
	lister := &fakeLister{records: []audit.Record{{
		ID:          "d-1",
		Kind:        "chat",
		WebhookHost: "n8n.example.com",
		WebhookPath: "/webhook/chat",
		Success:     true,
		HTTPStatus:  200,
		CompletedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}}}
	h := NewStatsHandler(nil, lister, logging.Discard())

	rr := httptest.NewRecorder()
	h.Deliveries(rr, httptest.NewRequest(http.MethodGet, "/api/deliveries?limit=5000", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 500, lister.limit)
	var body struct {
		Deliveries []audit.Record `json:"deliveries"`
		Count      int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "d-1", body.Deliveries[0].ID)
}

func TestDeliveriesErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	NewStatsHandler(nil, nil, logging.Discard()).
		Deliveries(rr, httptest.NewRequest(http.MethodGet, "/api/deliveries", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	NewStatsHandler(nil, &fakeLister{err: errors.New("boom")}, logging.Discard()).
		Deliveries(rr, httptest.NewRequest(http.MethodGet, "/api/deliveries", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = httptest.NewRecorder()
	lister := &fakeLister{}
	NewStatsHandler(nil, lister, logging.Discard()).
		Deliveries(rr, httptest.NewRequest(http.MethodGet, "/api/deliveries", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 50, lister.limit)
	assert.JSONEq(t, `{"deliveries":[],"count":0}`, rr.Body.String())
}
