// Package postgres persists orders with pgx. An order, its lines, its
// idempotency key and its order.created outbox event are written in one
// transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nazeru/quickshop-go/internal/order/domain"
	"github.com/nazeru/quickshop-go/pkg/contracts"
	"github.com/nazeru/quickshop-go/pkg/outbox"
)

var errIdempotencyRace = errors.New("idempotency race")

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	status         TEXT NOT NULL,
	subtotal       NUMERIC NOT NULL,
	tax            NUMERIC NOT NULL,
	delivery_fee   NUMERIC NOT NULL,
	discount       NUMERIC NOT NULL,
	tip            NUMERIC NOT NULL,
	total          NUMERIC NOT NULL,
	promo_code     TEXT NOT NULL DEFAULT '',
	payment_method TEXT NOT NULL,
	address        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS order_items (
	order_id   TEXT NOT NULL REFERENCES orders(id),
	position   INT NOT NULL,
	item_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	quantity   INT NOT NULL,
	unit_price NUMERIC NOT NULL,
	tax_rate   NUMERIC NOT NULL,
	line_total NUMERIC NOT NULL,
	PRIMARY KEY (order_id, position)
);
CREATE TABLE IF NOT EXISTS order_idempotency (
	user_id         TEXT NOT NULL,
	idempotency_key TEXT NOT NULL,
	order_id        TEXT NOT NULL REFERENCES orders(id),
	PRIMARY KEY (user_id, idempotency_key)
);
CREATE TABLE IF NOT EXISTS outbox (
	id         BIGSERIAL PRIMARY KEY,
	event_id   TEXT NOT NULL UNIQUE,
	topic      TEXT NOT NULL,
	key        TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	sent_at    TIMESTAMPTZ
);
`

type OrderSink struct {
	pool  *pgxpool.Pool
	topic string
}

func NewOrderSink(pool *pgxpool.Pool) *OrderSink {
	return &OrderSink{pool: pool, topic: contracts.TopicOrders}
}

func (s *OrderSink) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *OrderSink) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// WriteOrder inserts o. When o carries an idempotency key already used by
// the same user, the existing order's ID is returned and nothing is written.
func (s *OrderSink) WriteOrder(ctx context.Context, o domain.Order) (domain.OrderID, error) {
	if o.IdempotencyKey != "" {
		if existing, err := s.orderByIdempotency(ctx, o.UserID, o.IdempotencyKey); err == nil {
			return existing, nil
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return "", err
		}
	}

	err := s.insert(ctx, o)
	if errors.Is(err, errIdempotencyRace) {
		return s.orderByIdempotency(ctx, o.UserID, o.IdempotencyKey)
	}
	if err != nil {
		return "", err
	}
	return o.ID, nil
}

func (s *OrderSink) insert(ctx context.Context, o domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	addr, err := json.Marshal(o.Address)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO orders(id, user_id, status, subtotal, tax, delivery_fee, discount, tip, total, promo_code, payment_method, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		string(o.ID), o.UserID, string(o.Status),
		o.Totals.Subtotal, o.Totals.Tax, o.Totals.DeliveryFee, o.Totals.Discount, o.Totals.Tip, o.Totals.Total,
		o.PromoCode, string(o.PaymentMethod), addr, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, l := range o.Lines {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items(order_id, position, item_id, name, quantity, unit_price, tax_rate, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			string(o.ID), i, l.ItemID, l.Name, l.Quantity, l.UnitPrice, l.TaxRate, l.LineTotal,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if o.IdempotencyKey != "" {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_idempotency(user_id, idempotency_key, order_id) VALUES ($1, $2, $3)`,
			o.UserID, o.IdempotencyKey, string(o.ID),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return errIdempotencyRace
			}
			return fmt.Errorf("insert idempotency key: %w", err)
		}
	}

	if err := outbox.Insert(ctx, tx, uuid.NewString(), s.topic, string(o.ID), orderCreated(o)); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}

	return tx.Commit(ctx)
}

func orderCreated(o domain.Order) contracts.Event {
	lines := make([]contracts.OrderCreatedLine, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = contracts.OrderCreatedLine{ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice.String()}
	}
	return contracts.OrderCreated(uuid.NewString(), string(o.ID), o.UserID, o.CreatedAt, o.Totals.Total.String(), string(o.PaymentMethod), lines)
}

func (s *OrderSink) orderByIdempotency(ctx context.Context, userID, key string) (domain.OrderID, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT order_id FROM order_idempotency WHERE user_id=$1 AND idempotency_key=$2`, userID, key,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return domain.OrderID(id), nil
}

// Order loads one order with its lines.
func (s *OrderSink) Order(ctx context.Context, id domain.OrderID) (domain.Order, bool, error) {
	var (
		o       domain.Order
		addr    []byte
		status  string
		payment string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, status, subtotal, tax, delivery_fee, discount, tip, total, promo_code, payment_method, address, created_at, updated_at
		FROM orders WHERE id=$1`, string(id),
	).Scan(&o.ID, &o.UserID, &status,
		&o.Totals.Subtotal, &o.Totals.Tax, &o.Totals.DeliveryFee, &o.Totals.Discount, &o.Totals.Tip, &o.Totals.Total,
		&o.PromoCode, &payment, &addr, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, err
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentMethod = domain.PaymentMethod(payment)
	if err := json.Unmarshal(addr, &o.Address); err != nil {
		return domain.Order{}, false, fmt.Errorf("decode address: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT item_id, name, quantity, unit_price, tax_rate, line_total FROM order_items WHERE order_id=$1 ORDER BY position`,
		string(id))
	if err != nil {
		return domain.Order{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ItemID, &l.Name, &l.Quantity, &l.UnitPrice, &l.TaxRate, &l.LineTotal); err != nil {
			return domain.Order{}, false, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, true, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
