// Package config loads service configuration: defaults, then an optional
// TOML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/nazeru/quickshop-go/internal/cart"
	"github.com/nazeru/quickshop-go/internal/eligibility"
)

const (
	SinkMemory   = "memory"
	SinkPostgres = "postgres"
	SinkDynamo   = "dynamo"
)

type Config struct {
	Service     ServiceConfig     `toml:"service"`
	Cart        CartConfig        `toml:"cart"`
	Catalog     CatalogConfig     `toml:"catalog"`
	Zones       ZonesConfig       `toml:"zones"`
	Eligibility EligibilityConfig `toml:"eligibility"`
	Orders      OrdersConfig      `toml:"orders"`
	Kafka       KafkaConfig       `toml:"kafka"`
}

type ServiceConfig struct {
	Name           string        `toml:"name"`
	Port           string        `toml:"port"`
	Dev            bool          `toml:"dev"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

type CartConfig struct {
	DeliveryFee decimal.Decimal `toml:"delivery_fee"`
}

type CatalogConfig struct {
	SeedFile     string        `toml:"seed_file"`
	SQLitePath   string        `toml:"sqlite_path"`
	PollInterval time.Duration `toml:"poll_interval"`
}

type ZonesConfig struct {
	File           string        `toml:"file"`
	ReloadInterval time.Duration `toml:"reload_interval"`
}

type EligibilityConfig struct {
	Debounce            time.Duration `toml:"debounce"`
	MinMoveMeters       float64       `toml:"min_move_meters"`
	BasePrepMinutes     float64       `toml:"base_prep_minutes"`
	TravelSpeedKmPerMin float64       `toml:"travel_speed_km_per_min"`
	MinETAMinutes       int           `toml:"min_eta_minutes"`
}

type OrdersConfig struct {
	Sink           string `toml:"sink"`
	DatabaseURL    string `toml:"database_url"`
	DynamoTable    string `toml:"dynamo_table"`
	AWSRegion      string `toml:"aws_region"`
	DynamoEndpoint string `toml:"dynamo_endpoint"`
}

type KafkaConfig struct {
	Brokers       string        `toml:"brokers"`
	RelayInterval time.Duration `toml:"relay_interval"`
	BatchSize     int           `toml:"batch_size"`
}

func DefaultConfig() Config {
	el := eligibility.DefaultConfig()
	return Config{
		Service: ServiceConfig{
			Name:           "storefront",
			Port:           "8080",
			RequestTimeout: 10 * time.Second,
		},
		Cart: CartConfig{DeliveryFee: cart.DefaultConfig().DeliveryFee},
		Catalog: CatalogConfig{
			SeedFile:     "configs/catalog.toml",
			PollInterval: 30 * time.Second,
		},
		Zones: ZonesConfig{
			File:           "configs/zones.toml",
			ReloadInterval: time.Minute,
		},
		Eligibility: EligibilityConfig{
			Debounce:            el.DebounceInterval,
			MinMoveMeters:       el.MinMoveMeters,
			BasePrepMinutes:     el.BasePrepMinutes,
			TravelSpeedKmPerMin: el.TravelSpeedKmPerMin,
			MinETAMinutes:       el.MinETAMinutes,
		},
		Orders: OrdersConfig{
			Sink:      SinkMemory,
			AWSRegion: "us-east-1",
		},
		Kafka: KafkaConfig{
			RelayInterval: time.Second,
			BatchSize:     100,
		},
	}
}

// Load builds the configuration. path may be empty to skip the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.Service.Port = getenv("PORT", c.Service.Port)
	c.Service.Dev = getenv("DEV", strconv.FormatBool(c.Service.Dev)) == "true"
	c.Catalog.SeedFile = getenv("CATALOG_SEED", c.Catalog.SeedFile)
	c.Catalog.SQLitePath = getenv("SQLITE_PATH", c.Catalog.SQLitePath)
	c.Zones.File = getenv("ZONES_FILE", c.Zones.File)
	c.Orders.Sink = strings.ToLower(getenv("ORDER_SINK", c.Orders.Sink))
	c.Orders.DatabaseURL = getenv("DATABASE_URL", c.Orders.DatabaseURL)
	c.Orders.DynamoTable = getenv("DYNAMODB_TABLE_NAME", c.Orders.DynamoTable)
	c.Orders.AWSRegion = getenv("AWS_REGION", c.Orders.AWSRegion)
	c.Orders.DynamoEndpoint = getenv("DYNAMODB_ENDPOINT", c.Orders.DynamoEndpoint)
	c.Kafka.Brokers = getenv("KAFKA_BROKERS", c.Kafka.Brokers)

	if v := getenv("DELIVERY_FEE", ""); v != "" {
		fee, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("DELIVERY_FEE: %w", err)
		}
		c.Cart.DeliveryFee = fee
	}
	if v := getenv("REQUEST_TIMEOUT_MS", ""); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REQUEST_TIMEOUT_MS: %w", err)
		}
		c.Service.RequestTimeout = time.Duration(ms) * time.Millisecond
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Orders.Sink {
	case SinkMemory:
	case SinkPostgres:
		if c.Orders.DatabaseURL == "" {
			errs = append(errs, errors.New("orders.database_url (DATABASE_URL) is required for the postgres sink"))
		}
	case SinkDynamo:
		if c.Orders.DynamoTable == "" {
			errs = append(errs, errors.New("orders.dynamo_table (DYNAMODB_TABLE_NAME) is required for the dynamo sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("orders.sink %q: want memory, postgres or dynamo", c.Orders.Sink))
	}
	if c.Cart.DeliveryFee.IsNegative() {
		errs = append(errs, errors.New("cart.delivery_fee must not be negative"))
	}
	if c.Eligibility.TravelSpeedKmPerMin <= 0 {
		errs = append(errs, errors.New("eligibility.travel_speed_km_per_min must be positive"))
	}
	if c.Service.RequestTimeout <= 0 {
		errs = append(errs, errors.New("service.request_timeout must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) CartConfig() cart.Config {
	cc := cart.DefaultConfig()
	cc.DeliveryFee = c.Cart.DeliveryFee
	return cc
}

func (c Config) EligibilityConfig() eligibility.Config {
	return eligibility.Config{
		DebounceInterval:    c.Eligibility.Debounce,
		MinMoveMeters:       c.Eligibility.MinMoveMeters,
		BasePrepMinutes:     c.Eligibility.BasePrepMinutes,
		TravelSpeedKmPerMin: c.Eligibility.TravelSpeedKmPerMin,
		MinETAMinutes:       c.Eligibility.MinETAMinutes,
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
