// Package sqlite is the local catalog and address book, backed by the
// pure-Go modernc SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/nazeru/quickshop-go/internal/apperr"
	"github.com/nazeru/quickshop-go/internal/catalog"
	"github.com/nazeru/quickshop-go/internal/geo"
	"github.com/nazeru/quickshop-go/internal/order/domain"
)

// migrations are applied in order; SQLite executes one statement at a time.
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS items (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			category       TEXT NOT NULL DEFAULT '',
			price          TEXT NOT NULL,
			discount_price TEXT,
			tax_rate       TEXT NOT NULL DEFAULT '0',
			stock          INTEGER NOT NULL DEFAULT 0,
			available      INTEGER NOT NULL DEFAULT 1,
			featured       INTEGER NOT NULL DEFAULT 0,
			image_url      TEXT NOT NULL DEFAULT '',
			position       INTEGER NOT NULL DEFAULT 0,
			updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS addresses (
			user_id     TEXT NOT NULL,
			id          TEXT NOT NULL,
			label       TEXT NOT NULL DEFAULT '',
			line1       TEXT NOT NULL,
			line2       TEXT NOT NULL DEFAULT '',
			city        TEXT NOT NULL,
			postal_code TEXT NOT NULL DEFAULT '',
			lat         REAL NOT NULL,
			lon         REAL NOT NULL,
			is_default  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_addresses_default ON addresses(user_id, is_default)`,
	}
}

type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database file at path and migrates it.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range migrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

// UpsertItem inserts or replaces an item. New items are appended to the
// catalog order.
func (d *DB) UpsertItem(ctx context.Context, it catalog.Item) error {
	var discount sql.NullString
	if it.DiscountPrice != nil {
		discount = sql.NullString{String: it.DiscountPrice.String(), Valid: true}
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO items(id, name, category, price, discount_price, tax_rate, stock, available, featured, image_url, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM items))
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, category=excluded.category, price=excluded.price,
			discount_price=excluded.discount_price, tax_rate=excluded.tax_rate, stock=excluded.stock,
			available=excluded.available, featured=excluded.featured, image_url=excluded.image_url,
			updated_at=datetime('now')`,
		string(it.ID), it.Name, it.Category, it.Price.String(), discount, it.TaxRate.String(),
		it.Stock, it.Available, it.Featured, it.ImageURL,
	)
	return err
}

// SetStock changes an item's stock level. Unknown ids are a no-op.
func (d *DB) SetStock(ctx context.Context, id catalog.ItemID, stock int) error {
	_, err := d.db.ExecContext(ctx, `UPDATE items SET stock=?, updated_at=datetime('now') WHERE id=?`, stock, string(id))
	return err
}

// LoadItems reads the whole catalog in insertion order. It has the shape of
// catalog.Loader.
func (d *DB) LoadItems(ctx context.Context) ([]catalog.Item, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, category, price, discount_price, tax_rate, stock, available, featured, image_url
		FROM items ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Item
	for rows.Next() {
		var (
			it                  catalog.Item
			id, price, tax      string
			discount            sql.NullString
			available, featured bool
		)
		if err := rows.Scan(&id, &it.Name, &it.Category, &price, &discount, &tax, &it.Stock, &available, &featured, &it.ImageURL); err != nil {
			return nil, err
		}
		it.ID = catalog.ItemID(id)
		it.Available = available
		it.Featured = featured
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("item %s price: %w", id, err)
		}
		if it.TaxRate, err = decimal.NewFromString(tax); err != nil {
			return nil, fmt.Errorf("item %s tax rate: %w", id, err)
		}
		if discount.Valid {
			dp, err := decimal.NewFromString(discount.String)
			if err != nil {
				return nil, fmt.Errorf("item %s discount price: %w", id, err)
			}
			it.DiscountPrice = &dp
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// SaveAddress upserts a for userID. A default address demotes the previous
// default in the same transaction.
func (d *DB) SaveAddress(ctx context.Context, userID string, a domain.Address) error {
	if a.ID == "" {
		return apperr.NewValidation("address id is required")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if a.Default {
		if _, err := tx.ExecContext(ctx, `UPDATE addresses SET is_default=0 WHERE user_id=?`, userID); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO addresses(user_id, id, label, line1, line2, city, postal_code, lat, lon, is_default)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			label=excluded.label, line1=excluded.line1, line2=excluded.line2, city=excluded.city,
			postal_code=excluded.postal_code, lat=excluded.lat, lon=excluded.lon, is_default=excluded.is_default`,
		userID, a.ID, a.Label, a.Line1, a.Line2, a.City, a.PostalCode, a.Location.Lat, a.Location.Lon, a.Default,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) Addresses(ctx context.Context, userID string) ([]domain.Address, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, label, line1, line2, city, postal_code, lat, lon, is_default
		FROM addresses WHERE user_id=? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Address{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (d *DB) DefaultAddress(ctx context.Context, userID string) (domain.Address, bool, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, label, line1, line2, city, postal_code, lat, lon, is_default
		FROM addresses WHERE user_id=? AND is_default=1`, userID)
	a, err := scanAddress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Address{}, false, nil
	}
	if err != nil {
		return domain.Address{}, false, err
	}
	return a, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAddress(s scanner) (domain.Address, error) {
	var (
		a        domain.Address
		lat, lon float64
	)
	if err := s.Scan(&a.ID, &a.Label, &a.Line1, &a.Line2, &a.City, &a.PostalCode, &lat, &lon, &a.Default); err != nil {
		return domain.Address{}, err
	}
	a.Location = geo.Coordinate{Lat: lat, Lon: lon}
	return a, nil
}
