package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/quickshop-go/internal/geo"
	"github.com/nazeru/quickshop-go/internal/order/domain"
	"github.com/nazeru/quickshop-go/pkg/outbox"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("duplicate key")))
}

func TestOrderCreatedEvent(t *testing.T) {
	o := sampleOrder("o1", "")
	evt := orderCreated(o)
	assert.Equal(t, "o1", evt.OrderID)
	assert.Equal(t, "u1", evt.UserID)
	assert.Equal(t, "290.95", evt.Payload["total"])
	assert.Equal(t, "upi", evt.Payload["payment_method"])
}

func sampleOrder(id, key string) domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Order{
		ID:     domain.OrderID(id),
		UserID: "u1",
		Status: domain.OrderStatusPending,
		Lines: []domain.OrderLine{{
			ItemID: "rice", Name: "Rice", Quantity: 2,
			UnitPrice: decimal.RequireFromString("120.50"), TaxRate: decimal.NewFromInt(5),
			LineTotal: decimal.RequireFromString("241"),
		}},
		Totals: domain.Totals{
			Subtotal:    decimal.RequireFromString("241"),
			Tax:         decimal.RequireFromString("12.05"),
			DeliveryFee: decimal.NewFromInt(30),
			Discount:    decimal.RequireFromString("24.1"),
			Tip:         decimal.NewFromInt(32),
			Total:       decimal.RequireFromString("290.95"),
		},
		PromoCode:      "welcome10",
		Address:        domain.Address{ID: "home", Line1: "12 MG Road", City: "Bengaluru", Location: geo.Coordinate{Lat: 12.97, Lon: 77.59}},
		PaymentMethod:  domain.PaymentUPI,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// testPool connects to QUICKSHOP_TEST_DATABASE_URL or skips.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("QUICKSHOP_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("QUICKSHOP_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestOrderSink_WriteAndRead(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewOrderSink(pool)
	require.NoError(t, s.Migrate(ctx))

	id := uuid.NewString()
	got, err := s.WriteOrder(ctx, sampleOrder(id, ""))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderID(id), got)

	o, ok, err := s.Order(ctx, got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "welcome10", o.PromoCode)
	assert.True(t, decimal.RequireFromString("290.95").Equal(o.Totals.Total))
	require.Len(t, o.Lines, 1)
	assert.Equal(t, 2, o.Lines[0].Quantity)
	assert.Equal(t, "Bengaluru", o.Address.City)

	pending, err := outbox.FetchPending(ctx, pool, 1000)
	require.NoError(t, err)
	var found bool
	for _, r := range pending {
		if r.Key == id {
			found = true
		}
	}
	assert.True(t, found, "order.created queued in the outbox")
}

func TestOrderSink_IdempotentReplay(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewOrderSink(pool)
	require.NoError(t, s.Migrate(ctx))

	key := uuid.NewString()
	first, err := s.WriteOrder(ctx, sampleOrder(uuid.NewString(), key))
	require.NoError(t, err)

	second, err := s.WriteOrder(ctx, sampleOrder(uuid.NewString(), key))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, ok, err := s.Order(ctx, domain.OrderID(uuid.NewString()))
	require.NoError(t, err)
	assert.False(t, ok)
}
