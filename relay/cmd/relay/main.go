package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/hookrelay/common/logging"
	"github.com/telhawk-systems/hookrelay/common/middleware"
	"github.com/telhawk-systems/hookrelay/common/relaystats"
	"github.com/telhawk-systems/hookrelay/relay/internal/audit"
	"github.com/telhawk-systems/hookrelay/relay/internal/config"
	"github.com/telhawk-systems/hookrelay/relay/internal/handlers"
	"github.com/telhawk-systems/hookrelay/relay/internal/ratelimit"
	"github.com/telhawk-systems/hookrelay/relay/internal/server"
	"github.com/telhawk-systems/hookrelay/relay/internal/service"
	"github.com/telhawk-systems/hookrelay/relay/pkg/webhook"

	natsclient "github.com/telhawk-systems/hookrelay/common/messaging/nats"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("relay"))
	logging.SetDefault(logger)

	slog.Info("Starting relay service",
		slog.Int("port", cfg.Server.Port),
		slog.Duration("webhook_timeout", cfg.Webhook.Timeout),
		slog.String("log_level", cfg.Logging.Level),
	)

	checks := map[string]handlers.Check{}
	var recorders []service.NamedRecorder

	// Redis backs both the rate limiter and the delivery stats
	var rdb *redis.Client
	if cfg.RateLimit.Enabled || cfg.Stats.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid redis URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	var rateLimiter ratelimit.RateLimiter = ratelimit.NoOpRateLimiter{}
	if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.NewRedisRateLimiterFromClient(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		slog.Info("Rate limiting enabled",
			slog.Int("requests", cfg.RateLimit.Requests),
			slog.Duration("window", cfg.RateLimit.Window))
	} else {
		slog.Info("Rate limiting disabled in configuration")
	}

	var statsClient *relaystats.Client
	if cfg.Stats.Enabled {
		instanceID := cfg.Stats.InstanceID
		if instanceID == "" {
			hostname, _ := os.Hostname()
			instanceID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
		}
		statsClient = relaystats.NewClientFromRedis(rdb, instanceID)
		collector := relaystats.NewCollector(statsClient, cfg.Stats.FlushInterval, logger.Logger)
		defer collector.Stop()
		recorders = append(recorders, service.NamedRecorder{Name: "stats", Recorder: service.StatsRecorder{Collector: collector}})
		slog.Info("Webhook stats collector enabled",
			slog.Duration("flush_interval", cfg.Stats.FlushInterval),
			slog.String("instance", instanceID))
	}

	if cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Name = "hookrelay-relay"
		bus, err := natsclient.NewClient(natsCfg, logger.Logger)
		if err != nil {
			slog.Warn("Failed to connect to NATS, delivery events disabled", logging.Error(err))
		} else {
			defer bus.Drain()
			recorders = append(recorders, service.NamedRecorder{Name: "events", Recorder: service.EventRecorder{Publisher: bus}})
			checks["nats"] = func(context.Context) error {
				if !bus.IsConnected() {
					return errors.New("not connected")
				}
				return nil
			}
			slog.Info("Delivery events enabled", slog.String("nats_url", cfg.NATS.URL))
		}
	}

	var auditRepo *audit.PostgresRepository
	if cfg.Audit.Enabled {
		if err := audit.Migrate(cfg.Audit.MigrationsPath, cfg.Audit.DatabaseURL); err != nil {
			log.Fatalf("Failed to run audit migrations: %v", err)
		}
		auditRepo, err = audit.NewPostgresRepository(context.Background(), cfg.Audit.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to audit database: %v", err)
		}
		defer auditRepo.Close()
		recorders = append(recorders, service.NamedRecorder{Name: "audit", Recorder: auditRepo})
		checks["postgres"] = auditRepo.Ping
		slog.Info("Delivery audit log enabled")
	}

	opts := []service.Option{service.WithRecorders(recorders...)}
	if cfg.Webhook.UserAgent != "" {
		opts = append(opts, service.WithUserAgent(cfg.Webhook.UserAgent))
	}
	relayService := service.NewRelayService(webhook.NewForwarder(cfg.Webhook.Timeout), logger, opts...)

	h := server.Handlers{
		Relay:  handlers.NewRelayHandler(relayService, rateLimiter, cfg.Webhook.MaxBodyBytes, logger),
		Health: handlers.NewHealthHandler(checks),
	}
	if statsClient != nil || auditRepo != nil {
		var stats handlers.StatsReader
		if statsClient != nil {
			stats = statsClient
		}
		var deliveries handlers.DeliveryLister
		if auditRepo != nil {
			deliveries = auditRepo
		}
		h.Stats = handlers.NewStatsHandler(stats, deliveries, logger)
	}

	router := server.NewRouter(h, middleware.CORSConfig{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Relay service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}
	slog.Info("Server stopped")
}
