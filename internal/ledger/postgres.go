package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradesignals/checkout-api/internal/checkout"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS payment_ledger (
	id           BIGSERIAL PRIMARY KEY,
	recorded_at  TIMESTAMPTZ NOT NULL,
	country      TEXT        NOT NULL,
	gateway      TEXT        NOT NULL,
	amount_minor BIGINT      NOT NULL,
	currency     CHAR(3)     NOT NULL,
	payment_id   TEXT        NOT NULL UNIQUE,
	status       TEXT        NOT NULL
)`

// Postgres is the system-of-record ledger. payment_id is unique, so a
// retried or replayed verification lands as a duplicate instead of a second row.
type Postgres struct{ DB *pgxpool.Pool }

func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("migrate payment_ledger: %w", err)
	}
	return &Postgres{DB: pool}, nil
}

func (p *Postgres) Append(ctx context.Context, row checkout.LedgerRow) error {
	tag, err := p.DB.Exec(ctx, `
		INSERT INTO payment_ledger (recorded_at, country, gateway, amount_minor, currency, payment_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (payment_id) DO NOTHING`,
		row.Timestamp.UTC(), row.Country, string(row.Gateway), row.AmountMinor, row.Currency, row.PaymentID, string(row.Status),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return checkout.ErrLedgerDuplicate
		}
		return fmt.Errorf("%w: %w", checkout.ErrLedgerWrite, err)
	}
	if tag.RowsAffected() == 0 {
		return checkout.ErrLedgerDuplicate
	}
	return nil
}

// Get returns the recorded row for paymentID.
func (p *Postgres) Get(ctx context.Context, paymentID string) (checkout.LedgerRow, bool, error) {
	var (
		r       checkout.LedgerRow
		gateway string
		status  string
	)
	err := p.DB.QueryRow(ctx, `
		SELECT recorded_at, country, gateway, amount_minor, currency, payment_id, status
		FROM payment_ledger WHERE payment_id = $1`, paymentID,
	).Scan(&r.Timestamp, &r.Country, &gateway, &r.AmountMinor, &r.Currency, &r.PaymentID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return checkout.LedgerRow{}, false, nil
	}
	if err != nil {
		return checkout.LedgerRow{}, false, err
	}
	r.Timestamp = r.Timestamp.UTC()
	r.Gateway = checkout.Gateway(gateway)
	r.Status = checkout.LedgerStatus(status)
	return r, true, nil
}
