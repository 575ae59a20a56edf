package main

import (
	"context"
	"errors"
	"fmt"
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

	"github.com/nazeru/quickshop-go/internal/api"
	"github.com/nazeru/quickshop-go/internal/catalog"
	"github.com/nazeru/quickshop-go/internal/checkout"
	"github.com/nazeru/quickshop-go/internal/config"
	"github.com/nazeru/quickshop-go/internal/store/dynamo"
	"github.com/nazeru/quickshop-go/internal/store/memory"
	"github.com/nazeru/quickshop-go/internal/store/postgres"
	"github.com/nazeru/quickshop-go/internal/store/sqlite"
	"github.com/nazeru/quickshop-go/internal/storefront"
	"github.com/nazeru/quickshop-go/internal/zone"
	"github.com/nazeru/quickshop-go/pkg/kafka"
	"github.com/nazeru/quickshop-go/pkg/logging"
	"github.com/nazeru/quickshop-go/pkg/metrics"
)

const service = "storefront-service"

type orderStore interface {
	checkout.OrderSink
	api.OrderReader
}

type addressStore interface {
	checkout.AddressBook
	api.AddressSaver
}

func main() {
	cfg, err := config.Load(getenv("CONFIG_FILE", ""))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.Init(service, cfg.Service.Dev)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orders, closeOrders, err := openOrders(ctx, cfg)
	if err != nil {
		logger.Fatal("order sink", zap.String("sink", cfg.Orders.Sink), zap.Error(err))
	}
	defer closeOrders()

	store, addresses, closeCatalog, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("catalog", zap.Error(err))
	}
	defer closeCatalog()

	centers, err := zone.LoadFile(cfg.Zones.File)
	if err != nil {
		logger.Fatal("zones", zap.String("file", cfg.Zones.File), zap.Error(err))
	}
	zones := zone.NewIndex(centers)
	go zone.Watch(ctx, cfg.Zones.File, cfg.Zones.ReloadInterval, zones, logger)

	deps := storefront.Deps{
		Catalog:     store,
		Zones:       zones,
		Sink:        orders,
		Addresses:   addresses,
		Cart:        cfg.CartConfig(),
		Eligibility: cfg.EligibilityConfig(),
		Metrics:     metrics.NewEngineMetrics("storefront", prometheus.DefaultRegisterer),
		Log:         logger,
	}
	kafkaClient := kafka.NewClient(cfg.Kafka.Brokers)
	if kafkaClient.Enabled() {
		pub, err := kafka.NewPublisher(kafkaClient)
		if err != nil {
			logger.Fatal("kafka publisher", zap.Error(err))
		}
		defer func() { _ = pub.Close() }()
		deps.Events = pub
	}
	registry := storefront.NewRegistry(deps)
	defer registry.Close()

	server := api.NewServer(registry, store)
	server.SetAddressSaver(addresses)
	server.SetOrderReader(orders)
	server.SetLogger(logger)
	server.SetTimeout(cfg.Service.RequestTimeout)
	server.EnableMetrics(metrics.NewServerMetrics("storefront", prometheus.DefaultRegisterer), prometheus.DefaultGatherer)

	srv := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Log(logging.Fields{
		Service: service,
		Step:    "listening",
		Message: fmt.Sprintf("%s listening on :%s (ORDER_SINK=%s, KAFKA=%v)", service, cfg.Service.Port, cfg.Orders.Sink, kafkaClient.Enabled()),
	})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
}

func openOrders(ctx context.Context, cfg config.Config) (orderStore, func(), error) {
	switch cfg.Orders.Sink {
	case config.SinkPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := pgxpool.New(connectCtx, cfg.Orders.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		sink := postgres.NewOrderSink(pool)
		if err := sink.Ping(connectCtx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("db ping: %w", err)
		}
		if err := sink.Migrate(connectCtx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return sink, pool.Close, nil
	case config.SinkDynamo:
		client, err := dynamo.NewClient(ctx, cfg.Orders.AWSRegion, cfg.Orders.DynamoEndpoint)
		if err != nil {
			return nil, nil, err
		}
		return dynamo.NewOrderSink(client, cfg.Orders.DynamoTable), func() {}, nil
	default:
		return memory.NewOrderSink(), func() {}, nil
	}
}

// openCatalog serves the catalog from sqlite when a path is configured,
// seeding an empty database from the seed file, and polls it for changes.
// Without sqlite the seed file is the whole catalog.
func openCatalog(ctx context.Context, cfg config.Config, logger *zap.Logger) (*catalog.Store, addressStore, func(), error) {
	if cfg.Catalog.SQLitePath == "" {
		items, err := catalog.LoadFile(cfg.Catalog.SeedFile)
		if err != nil {
			return nil, nil, nil, err
		}
		return catalog.NewStore(items), memory.NewAddressBook(), func() {}, nil
	}

	db, err := sqlite.Open(cfg.Catalog.SQLitePath)
	if err != nil {
		return nil, nil, nil, err
	}
	items, err := db.LoadItems(ctx)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	if len(items) == 0 && cfg.Catalog.SeedFile != "" {
		if items, err = seed(ctx, db, cfg.Catalog.SeedFile); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		logger.Info("catalog seeded", zap.String("file", cfg.Catalog.SeedFile), zap.Int("items", len(items)))
	}

	store := catalog.NewStore(items)
	poller := catalog.NewPoller(db.LoadItems, cfg.Catalog.PollInterval, logger)
	unfollow := store.Follow(poller)
	go poller.Run(ctx)

	return store, db, func() {
		unfollow()
		_ = db.Close()
	}, nil
}

func seed(ctx context.Context, db *sqlite.DB, path string) ([]catalog.Item, error) {
	items, err := catalog.LoadFile(path)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if err := db.UpsertItem(ctx, it); err != nil {
			return nil, fmt.Errorf("seed %s: %w", it.ID, err)
		}
	}
	return items, nil
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
