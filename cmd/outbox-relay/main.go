package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nazeru/quickshop-go/internal/config"
	"github.com/nazeru/quickshop-go/internal/store/postgres"
	"github.com/nazeru/quickshop-go/pkg/kafka"
	"github.com/nazeru/quickshop-go/pkg/logging"
	"github.com/nazeru/quickshop-go/pkg/metrics"
	"github.com/nazeru/quickshop-go/pkg/outbox"
)

const service = "outbox-relay"

func main() {
	cfg, err := config.Load(getenv("CONFIG_FILE", ""))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.Orders.DatabaseURL == "" {
		log.Fatal("config error: DATABASE_URL is required")
	}
	logger, err := logging.Init(service, cfg.Service.Dev)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := pgxpool.New(connectCtx, cfg.Orders.DatabaseURL)
	if err != nil {
		cancel()
		logger.Fatal("db connect error", zap.Error(err))
	}
	defer pool.Close()
	// the relay may start before the storefront has created the outbox table
	err = postgres.NewOrderSink(pool).Migrate(connectCtx)
	cancel()
	if err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	pub, err := kafka.NewPublisher(kafka.NewClient(cfg.Kafka.Brokers))
	if err != nil {
		logger.Fatal("kafka publisher (KAFKA_BROKERS)", zap.Error(err))
	}
	defer func() { _ = pub.Close() }()

	relay := &outbox.Relay{
		Store:     outbox.PGStore{DB: pool},
		Publisher: pub,
		BatchSize: cfg.Kafka.BatchSize,
		Interval:  cfg.Kafka.RelayInterval,
		Log:       logger,
	}
	go relay.Run(ctx)

	srvMetrics := metrics.NewServerMetrics("outbox_relay", prometheus.DefaultRegisterer)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if err := pool.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "db_error"})
			srvMetrics.Observe("health", "503", time.Since(start))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		srvMetrics.Observe("health", "200", time.Since(start))
	})
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: ":" + cfg.Service.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Log(logging.Fields{Service: service, Step: "listening", Message: service + " listening on :" + cfg.Service.Port})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
