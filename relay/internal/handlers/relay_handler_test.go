package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/hookrelay/common/logging"
	"github.com/telhawk-systems/hookrelay/relay/pkg/webhook"
)

type fakeRelayer struct {
	calls    int
	class    webhook.Class
	req      *webhook.RelayRequest
	clientIP string
	env      *webhook.RelayEnvelope
}

func (f *fakeRelayer) Relay(_ context.Context, class webhook.Class, req *webhook.RelayRequest, clientIP string) *webhook.RelayEnvelope {
	f.calls++
	f.class = class
	f.req = req
	f.clientIP = clientIP
	if f.env != nil {
		return f.env
	}
	return &webhook.RelayEnvelope{Success: true, Data: json.RawMessage(`{"output":"ok"}`), Source: class.ResponseSource}
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

func (f *fakeLimiter) Close() error { return nil }

func classFor(t *testing.T, k webhook.Kind) webhook.Class {
	t.Helper()
	c, ok := webhook.ClassFor(k)
	require.True(t, ok)
	return c
}

func serve(t *testing.T, h *RelayHandler, class webhook.Class, method, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, class.Route, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:51234"
	rr := httptest.NewRecorder()
	h.Handle(class)(rr, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded), "body: %s", rr.Body.String())
	return rr, decoded
}

func TestHandleRejectsNonPost(t *testing.T) {
	relayer := &fakeRelayer{}
	h := NewRelayHandler(relayer, nil, 0, logging.Discard())

	rr, body := serve(t, h, classFor(t, webhook.KindChat), http.MethodGet, "")

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "Method not allowed", body["error"])
	assert.Equal(t, "POST", rr.Header().Get("Allow"))
	assert.Zero(t, relayer.calls)
}

func TestHandleMissingBody(t *testing.T) {
	for _, body := range []string{"", "   ", "null"} {
		relayer := &fakeRelayer{}
		h := NewRelayHandler(relayer, nil, 0, logging.Discard())

		rr, decoded := serve(t, h, classFor(t, webhook.KindPDF), http.MethodPost, body)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "body %q", body)
		assert.Equal(t, false, decoded["success"])
		assert.Equal(t, "No request body received", decoded["error"])
		assert.Zero(t, relayer.calls)
	}
}

func TestHandleInvalidJSON(t *testing.T) {
	h := NewRelayHandler(&fakeRelayer{}, nil, 0, logging.Discard())

	rr, decoded := serve(t, h, classFor(t, webhook.KindChat), http.MethodPost, `{"message":`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid JSON in request body", decoded["error"])
	assert.NotEmpty(t, decoded["details"])
}

func TestHandleMissingFile(t *testing.T) {
	relayer := &fakeRelayer{}
	h := NewRelayHandler(relayer, nil, 0, logging.Discard())

	rr, decoded := serve(t, h, classFor(t, webhook.KindImage), http.MethodPost,
		`{"webhookUrl":"https://n8n.example.com/webhook/x","fileName":"a.png"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "No file uploaded - file field missing", decoded["error"])
	received, ok := decoded["received"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, received["hasWebhookUrl"])
	assert.Equal(t, true, received["hasFileName"])
	assert.Equal(t, false, received["hasTimestamp"])
	assert.Equal(t, []any{"fileName", "webhookUrl"}, received["bodyKeys"])
	assert.Zero(t, relayer.calls)
}

func TestHandleMissingMessage(t *testing.T) {
	h := NewRelayHandler(&fakeRelayer{}, nil, 0, logging.Discard())

	rr, decoded := serve(t, h, classFor(t, webhook.KindChat), http.MethodPost,
		`{"webhookUrl":"https://n8n.example.com/webhook/x","message":""}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Missing message in request body", decoded["error"])
}

func TestHandleMissingWebhookURL(t *testing.T) {
	tests := []struct {
		kind    webhook.Kind
		body    string
		flag    string
		notFlag string
	}{
		{webhook.KindChat, `{"message":"hello"}`, "hasMessage", "hasFile"},
		{webhook.KindAudio, `{"file":"data:audio/mpeg;base64,AAAA","fileName":"a.mp3"}`, "hasFile", "hasMessage"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			relayer := &fakeRelayer{}
			h := NewRelayHandler(relayer, nil, 0, logging.Discard())

			rr, decoded := serve(t, h, classFor(t, tt.kind), http.MethodPost, tt.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "Missing webhookUrl in request body", decoded["error"])
			received := decoded["received"].(map[string]any)
			assert.Equal(t, true, received[tt.flag])
			assert.NotContains(t, received, tt.notFlag)
			assert.Contains(t, received, "bodyKeys")
			assert.Zero(t, relayer.calls)
		})
	}
}

func TestHandleRelaysValidRequest(t *testing.T) {
	relayer := &fakeRelayer{}
	limiter := &fakeLimiter{allow: true}
	h := NewRelayHandler(relayer, limiter, 1<<20, logging.Discard())
	class := classFor(t, webhook.KindChat)
	message := gofakeit.Sentence(8)

	payload, err := json.Marshal(map[string]any{
		"webhookUrl": "https://n8n.example.com/webhook/chat",
		"message":    message,
		"source":     "widget",
	})
	require.NoError(t, err)

	rr, decoded := serve(t, h, class, http.MethodPost, string(payload))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decoded["success"])
	assert.Equal(t, map[string]any{"output": "ok"}, decoded["data"])
	require.Equal(t, 1, relayer.calls)
	assert.Equal(t, class.Kind, relayer.class.Kind)
	assert.Equal(t, message, relayer.req.Message)
	assert.Equal(t, "widget", relayer.req.Source)
	assert.Equal(t, "192.0.2.10", relayer.clientIP)
	assert.Equal(t, []string{"chat:192.0.2.10"}, limiter.keys)
}

func TestHandlePassesRelayFailureWith200(t *testing.T) {
	relayer := &fakeRelayer{env: &webhook.RelayEnvelope{
		Error:   "n8n webhook returned 500: Internal Server Error",
		Details: webhook.RemoteErrorDetails{Status: 500, StatusText: "Internal Server Error"},
	}}
	h := NewRelayHandler(relayer, nil, 0, logging.Discard())

	rr, decoded := serve(t, h, classFor(t, webhook.KindVideo), http.MethodPost,
		`{"webhookUrl":"https://n8n.example.com/webhook/v","file":"AAAA"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, "n8n webhook returned 500: Internal Server Error", decoded["error"])
}

func TestHandleRateLimited(t *testing.T) {
	relayer := &fakeRelayer{}
	h := NewRelayHandler(relayer, &fakeLimiter{allow: false}, 0, logging.Discard())

	rr, decoded := serve(t, h, classFor(t, webhook.KindChat), http.MethodPost,
		`{"webhookUrl":"https://n8n.example.com/webhook/x","message":"hi"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, "Rate limit exceeded", decoded["error"])
	assert.Zero(t, relayer.calls)
}

func TestHandleLimiterErrorFailsOpen(t *testing.T) {
	relayer := &fakeRelayer{}
	h := NewRelayHandler(relayer, &fakeLimiter{err: errors.New("redis down")}, 0, logging.Discard())

	rr, _ := serve(t, h, classFor(t, webhook.KindChat), http.MethodPost,
		`{"webhookUrl":"https://n8n.example.com/webhook/x","message":"hi"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, relayer.calls)
}

func TestHandleBodyTooLarge(t *testing.T) {
	relayer := &fakeRelayer{}
	h := NewRelayHandler(relayer, nil, 64, logging.Discard())

	body := `{"webhookUrl":"https://n8n.example.com/webhook/x","file":"` + strings.Repeat("A", 256) + `"}`
	rr, decoded := serve(t, h, classFor(t, webhook.KindPDF), http.MethodPost, body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "Request body too large", decoded["error"])
	assert.Zero(t, relayer.calls)
}

func TestHandleWrongFieldType(t *testing.T) {
	relayer := &fakeRelayer{}
	h := NewRelayHandler(relayer, nil, 0, logging.Discard())

	rr, decoded := serve(t, h, classFor(t, webhook.KindPDF), http.MethodPost,
		`{"webhookUrl":"https://n8n.example.com/webhook/x","file":"AAAA","fileSize":"large"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid request body", decoded["error"])
	assert.Zero(t, relayer.calls)
}

type panickingRelayer struct{}

func (panickingRelayer) Relay(context.Context, webhook.Class, *webhook.RelayRequest, string) *webhook.RelayEnvelope {
	panic("unexpected")
}

func TestHandleRecoversFromPanic(t *testing.T) {
	h := NewRelayHandler(panickingRelayer{}, nil, 0, logging.Discard())
	class := classFor(t, webhook.KindPDF)

	rr, decoded := serve(t, h, class, http.MethodPost,
		`{"webhookUrl":"https://n8n.example.com/webhook/x","file":"AAAA"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, class.InternalError, decoded["error"])
	assert.Equal(t, class.ResponseSource, decoded["source"])
}

func TestHandleBlankWebhookURL(t *testing.T) {
	relayer := &fakeRelayer{}
	h := NewRelayHandler(relayer, nil, 0, logging.Discard())

	for _, kind := range []webhook.Kind{webhook.KindChat, webhook.KindVideo} {
		class := classFor(t, kind)
		body := `{"webhookUrl":"   ","message":"hi","file":"AAAA"}`

		rr, decoded := serve(t, h, class, http.MethodPost, body)

		assert.Equal(t, http.StatusBadRequest, rr.Code, kind)
		assert.Equal(t, "Missing webhookUrl in request body", decoded["error"], kind)
		assert.Equal(t, false, decoded["success"], kind)
	}
	assert.Zero(t, relayer.calls)
}

func TestHandleBlankWebhookURLReportedWithMissingContent(t *testing.T) {
	h := NewRelayHandler(&fakeRelayer{}, nil, 0, logging.Discard())

	rr, decoded := serve(t, h, classFor(t, webhook.KindImage), http.MethodPost, `{"webhookUrl":"\t"}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	received, ok := decoded["received"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, received["hasWebhookUrl"])
}
