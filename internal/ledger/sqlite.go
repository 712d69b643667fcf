package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tradesignals/checkout-api/internal/checkout"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS payment_ledger (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at  TEXT    NOT NULL,
	country      TEXT    NOT NULL,
	gateway      TEXT    NOT NULL,
	amount_minor INTEGER NOT NULL,
	currency     TEXT    NOT NULL,
	payment_id   TEXT    NOT NULL UNIQUE,
	status       TEXT    NOT NULL
)`

// SQLite is the single-node ledger used in development and small deployments.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; sqlite serializes anyway and :memory: is per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate payment_ledger: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Append(ctx context.Context, row checkout.LedgerRow) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_ledger (recorded_at, country, gateway, amount_minor, currency, payment_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (payment_id) DO NOTHING`,
		row.Timestamp.UTC().Format(time.RFC3339Nano), row.Country, string(row.Gateway), row.AmountMinor, row.Currency, row.PaymentID, string(row.Status),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", checkout.ErrLedgerWrite, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", checkout.ErrLedgerWrite, err)
	}
	if n == 0 {
		return checkout.ErrLedgerDuplicate
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, paymentID string) (checkout.LedgerRow, bool, error) {
	var (
		r          checkout.LedgerRow
		recordedAt string
		gateway    string
		status     string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT recorded_at, country, gateway, amount_minor, currency, payment_id, status
		FROM payment_ledger WHERE payment_id = ?`, paymentID,
	).Scan(&recordedAt, &r.Country, &gateway, &r.AmountMinor, &r.Currency, &r.PaymentID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return checkout.LedgerRow{}, false, nil
	}
	if err != nil {
		return checkout.LedgerRow{}, false, err
	}
	if r.Timestamp, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
		return checkout.LedgerRow{}, false, fmt.Errorf("parse recorded_at: %w", err)
	}
	r.Gateway = checkout.Gateway(gateway)
	r.Status = checkout.LedgerStatus(status)
	return r, true, nil
}

func (s *SQLite) Close() error { return s.db.Close() }
