package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/hookrelay/common/middleware"
	"github.com/telhawk-systems/hookrelay/relay/internal/handlers"
	"github.com/telhawk-systems/hookrelay/relay/pkg/webhook"
)

// Handlers groups everything the router serves.
type Handlers struct {
	Relay  *handlers.RelayHandler
	Health *handlers.HealthHandler
	// Stats is optional.
	Stats *handlers.StatsHandler
}

// NewRouter constructs a ServeMux with every relay class and the operational
// endpoints registered.
func NewRouter(h Handlers, cors middleware.CORSConfig) http.Handler {
	mux := http.NewServeMux()

	// One route per relay class
	for _, class := range webhook.Classes() {
		mux.HandleFunc(class.Route, h.Relay.Handle(class))
	}

	if h.Stats != nil {
		mux.HandleFunc("/api/webhook/stats", h.Stats.WebhookStats)
		mux.HandleFunc("/api/deliveries", h.Stats.Deliveries)
	}

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health.Health)
	mux.HandleFunc("/readyz", h.Health.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(middleware.CORS(cors)(mux))
}
