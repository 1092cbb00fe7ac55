package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/hookrelay/common/middleware"
)

func TestForwardCapturesResponse(t *testing.T) {
	var gotHeader http.Header
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("X-Workflow", "demo")
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"accepted":true}`)
	}))
	defer srv.Close()

	ctx := middleware.WithRequestID(context.Background(), "req-42")
	enc := &Encoded{Body: []byte(`{"message":"hi"}`), ContentType: "application/json"}

	raw, err := NewForwarder(time.Second).Forward(ctx, srv.URL, enc, "HookRelay-Test/1.0")
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, raw.HTTPStatus)
	assert.Equal(t, "Accepted", raw.StatusText)
	assert.Equal(t, `{"accepted":true}`, raw.BodyText)
	assert.Equal(t, "demo", raw.Headers.Get("X-Workflow"))
	assert.True(t, raw.OK())

	assert.Equal(t, `{"message":"hi"}`, string(gotBody))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "application/json", gotHeader.Get("Accept"))
	assert.Equal(t, "HookRelay-Test/1.0", gotHeader.Get("User-Agent"))
	assert.Equal(t, "req-42", gotHeader.Get(middleware.HeaderRequestID))
}

func TestForwardNon2xxIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	raw, err := NewForwarder(time.Second).Forward(context.Background(), srv.URL, &Encoded{ContentType: "text/plain"}, "")
	require.NoError(t, err)
	assert.Equal(t, 500, raw.HTTPStatus)
	assert.Equal(t, "Internal Server Error", raw.StatusText)
	assert.Equal(t, "nope\n", raw.BodyText)
	assert.False(t, raw.OK())
}

func TestForwardTransportErrors(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	tests := []struct {
		name    string
		url     string
		timeout time.Duration
	}{
		{"connection refused", closedURL, time.Second},
		{"timeout", slow.URL, 50 * time.Millisecond},
		{"malformed url", "http://[::1", time.Second},
		{"missing scheme", "n8n.example.com/webhook", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewForwarder(tt.timeout).Forward(context.Background(), tt.url, &Encoded{ContentType: "application/json"}, "")
			require.Error(t, err)
			assert.True(t, IsTransportError(err), "got %v", err)
			assert.Contains(t, err.Error(), "transport failure")
		})
	}
}

func TestNewForwarderDefaultsTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NewForwarder(0).httpClient.Timeout)
	assert.Equal(t, 5*time.Second, NewForwarder(5*time.Second).httpClient.Timeout)

	client := &http.Client{}
	assert.Same(t, client, NewForwarderWithClient(client).httpClient)
}

func TestNilForwarder(t *testing.T) {
	var f *Forwarder
	_, err := f.Forward(context.Background(), "http://example.com", &Encoded{}, "")
	require.Error(t, err)
	assert.False(t, IsTransportError(err))
}
