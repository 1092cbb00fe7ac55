package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/hookrelay/common/logging"
	"github.com/telhawk-systems/hookrelay/common/middleware"
	"github.com/telhawk-systems/hookrelay/relay/internal/handlers"
	"github.com/telhawk-systems/hookrelay/relay/pkg/webhook"
)

type echoRelayer struct{}

func (echoRelayer) Relay(ctx context.Context, class webhook.Class, req *webhook.RelayRequest, _ string) *webhook.RelayEnvelope {
	data, _ := json.Marshal(map[string]string{
		"kind":       string(class.Kind),
		"request_id": middleware.GetRequestID(ctx),
	})
	return &webhook.RelayEnvelope{Success: true, Data: data, Source: class.ResponseSource}
}

func newTestRouter(stats *handlers.StatsHandler) http.Handler {
	return NewRouter(Handlers{
		Relay:  handlers.NewRelayHandler(echoRelayer{}, nil, 1<<20, logging.Discard()),
		Health: handlers.NewHealthHandler(nil),
		Stats:  stats,
	}, middleware.CORSConfig{
		AllowedOrigins: []string{"https://chat.example.com"},
		AllowedMethods: []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
}

func TestRouterServesEveryClass(t *testing.T) {
	router := newTestRouter(nil)

	for _, class := range webhook.Classes() {
		t.Run(string(class.Kind), func(t *testing.T) {
			body := `{"webhookUrl":"https://n8n.example.com/webhook/x","message":"hi","file":"AAAA"}`
			req := httptest.NewRequest(http.MethodPost, class.Route, strings.NewReader(body))
			req.Header.Set(middleware.HeaderRequestID, "req-"+string(class.Kind))
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			assert.Equal(t, "req-"+string(class.Kind), rr.Header().Get(middleware.HeaderRequestID))

			var env struct {
				Success bool              `json:"success"`
				Data    map[string]string `json:"data"`
				Source  string            `json:"source"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
			assert.True(t, env.Success)
			assert.Equal(t, string(class.Kind), env.Data["kind"])
			assert.Equal(t, "req-"+string(class.Kind), env.Data["request_id"])
			assert.Equal(t, class.ResponseSource, env.Source)
		})
	}
}

func TestRouterOperationalEndpoints(t *testing.T) {
	router := newTestRouter(nil)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
}

func TestRouterStatsRoutesOptional(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/deliveries", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	newTestRouter(handlers.NewStatsHandler(nil, nil, logging.Discard())).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/deliveries", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "not enabled")
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/upload-pdf", nil)
	req.Header.Set("Origin", "https://chat.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://chat.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterRejectsGetOnRelayRoute(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/webhook/n8n", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
