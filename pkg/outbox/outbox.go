package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

type Record struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at"`
}

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx, so Insert can
// join the transaction that writes the business rows.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type DB interface {
	Execer
	Querier
}

func Insert(ctx context.Context, db Execer, eventID, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `INSERT INTO outbox(event_id, topic, key, payload) VALUES ($1, $2, $3, $4)`, eventID, topic, key, data)
	return err
}

func MarkSent(ctx context.Context, db Execer, id int64) error {
	_, err := db.Exec(ctx, `UPDATE outbox SET sent_at=now() WHERE id=$1`, id)
	return err
}

func FetchPending(ctx context.Context, db Querier, limit int) ([]Record, error) {
	rows, err := db.Query(ctx, `SELECT id, event_id, topic, key, payload, created_at, sent_at FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Store is the relay's view of the outbox table.
type Store interface {
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
}

type PGStore struct {
	DB DB
}

func (s PGStore) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	return FetchPending(ctx, s.DB, limit)
}

func (s PGStore) MarkSent(ctx context.Context, id int64) error {
	return MarkSent(ctx, s.DB, id)
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Relay ships pending outbox records to a publisher in id order. A record is
// marked sent only after it was published, so delivery is at-least-once.
type Relay struct {
	Store     Store
	Publisher Publisher
	BatchSize int
	Interval  time.Duration
	Log       *zap.Logger
}

// RunOnce publishes one batch. It stops at the first publish failure so
// records are never shipped out of order.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	batch := r.BatchSize
	if batch <= 0 {
		batch = 100
	}
	recs, err := r.Store.FetchPending(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("fetch pending: %w", err)
	}
	sent := 0
	for _, rec := range recs {
		if err := r.Publisher.Publish(ctx, rec.Topic, rec.Key, rec.Payload); err != nil {
			return sent, fmt.Errorf("publish %s: %w", rec.EventID, err)
		}
		if err := r.Store.MarkSent(ctx, rec.ID); err != nil {
			return sent, fmt.Errorf("mark sent %s: %w", rec.EventID, err)
		}
		sent++
	}
	return sent, nil
}

// Run drains the outbox every Interval until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		n, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			log.Warn("outbox relay batch failed", zap.Int("sent", n), zap.Error(err))
		} else if n > 0 {
			log.Info("outbox relay batch sent", zap.Int("sent", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
