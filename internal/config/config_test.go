package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "DEV", "CATALOG_SEED", "SQLITE_PATH", "ZONES_FILE", "ORDER_SINK",
	"DATABASE_URL", "DYNAMODB_TABLE_NAME", "AWS_REGION", "DYNAMODB_ENDPOINT",
	"KAFKA_BROKERS", "DELIVERY_FEE", "REQUEST_TIMEOUT_MS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Service.Port != "8080" {
		t.Errorf("Service.Port = %q, want 8080", cfg.Service.Port)
	}
	if !cfg.Cart.DeliveryFee.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Cart.DeliveryFee = %s, want 30", cfg.Cart.DeliveryFee)
	}
	if cfg.Eligibility.Debounce != 500*time.Millisecond {
		t.Errorf("Eligibility.Debounce = %v, want 500ms", cfg.Eligibility.Debounce)
	}
	if cfg.Eligibility.MinMoveMeters != 10 {
		t.Errorf("Eligibility.MinMoveMeters = %v, want 10", cfg.Eligibility.MinMoveMeters)
	}
	if cfg.Orders.Sink != SinkMemory {
		t.Errorf("Orders.Sink = %q, want memory", cfg.Orders.Sink)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Service, cfg.Service)
}

func TestLoad_ShippedFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("../../configs/storefront.toml")
	require.NoError(t, err)

	assert.True(t, cfg.Service.Dev)
	assert.Equal(t, "ap-south-1", cfg.Orders.AWSRegion)
	assert.Equal(t, time.Minute, cfg.Zones.ReloadInterval)
	assert.Equal(t, 10, cfg.Eligibility.MinETAMinutes)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
[service]
port = "9090"
request_timeout = "3s"

[cart]
delivery_fee = "25.5"

[eligibility]
debounce = "250ms"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Service.Port)
	assert.Equal(t, 3*time.Second, cfg.Service.RequestTimeout)
	assert.True(t, decimal.RequireFromString("25.5").Equal(cfg.Cart.DeliveryFee))
	assert.Equal(t, 250*time.Millisecond, cfg.Eligibility.Debounce)
	assert.Equal(t, 0.4, cfg.Eligibility.TravelSpeedKmPerMin, "untouched keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
[service]
port = "9090"
`)
	t.Setenv("PORT", "7070")
	t.Setenv("ORDER_SINK", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/quickshop")
	t.Setenv("DELIVERY_FEE", "40")
	t.Setenv("REQUEST_TIMEOUT_MS", "1500")
	t.Setenv("DEV", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Service.Port)
	assert.Equal(t, SinkPostgres, cfg.Orders.Sink)
	assert.Equal(t, "postgres://localhost/quickshop", cfg.Orders.DatabaseURL)
	assert.True(t, decimal.NewFromInt(40).Equal(cfg.Cart.DeliveryFee))
	assert.Equal(t, 1500*time.Millisecond, cfg.Service.RequestTimeout)
	assert.True(t, cfg.Service.Dev)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		body string
	}{
		{name: "unknown sink", env: map[string]string{"ORDER_SINK": "redis"}},
		{name: "postgres without url", env: map[string]string{"ORDER_SINK": "postgres"}},
		{name: "dynamo without table", env: map[string]string{"ORDER_SINK": "dynamo"}},
		{name: "bad fee", env: map[string]string{"DELIVERY_FEE": "thirty"}},
		{name: "negative fee", env: map[string]string{"DELIVERY_FEE": "-1"}},
		{name: "bad timeout", env: map[string]string{"REQUEST_TIMEOUT_MS": "soon"}},
		{name: "malformed toml", body: "[service\nport = 1"},
		{name: "zero speed", body: "[eligibility]\ntravel_speed_km_per_min = 0.0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.body != "" {
				path = writeFile(t, tt.body)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestConfig_Conversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cart.DeliveryFee = decimal.NewFromInt(45)
	cfg.Eligibility.Debounce = time.Second

	cc := cfg.CartConfig()
	assert.True(t, decimal.NewFromInt(45).Equal(cc.DeliveryFee))
	assert.NotNil(t, cc.NewLineID)
	assert.Len(t, cc.PromoRules, 3)

	ec := cfg.EligibilityConfig()
	assert.Equal(t, time.Second, ec.DebounceInterval)
	assert.Equal(t, 13, ec.ETA(3.0))
}
