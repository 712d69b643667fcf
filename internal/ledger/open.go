package ledger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tradesignals/checkout-api/internal/checkout"
	"github.com/tradesignals/checkout-api/internal/config"
	"github.com/tradesignals/checkout-api/internal/postgres"
)

// Open builds the recorder selected by LEDGER_BACKEND. rdb backs the
// payment-id dedup of the spreadsheet backend. The returned close func is
// always safe to call.
func Open(ctx context.Context, cfg config.Config, rdb redis.Cmdable) (checkout.Recorder, func(), error) {
	switch cfg.LedgerBackend {
	case "", "postgres":
		if cfg.PostgresDSN == "" {
			return nil, func() {}, fmt.Errorf("%w: POSTGRES_DSN not set", checkout.ErrLedgerUnconfigured)
		}
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, func() {}, err
		}
		rec, err := NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		return rec, pool.Close, nil
	case "sqlite":
		rec, err := NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, func() {}, err
		}
		return rec, func() { _ = rec.Close() }, nil
	case "sheets":
		rec, err := NewSheets(ctx, SheetsFromConfig(cfg.Sheets))
		if err != nil {
			return nil, func() {}, err
		}
		return &Deduped{Next: rec, Redis: rdb, Scope: SheetsScope}, func() {}, nil
	}
	return nil, func() {}, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
}

func SheetsFromConfig(c config.Sheets) SheetsOptions {
	return SheetsOptions{
		SpreadsheetID:       c.SpreadsheetID,
		Range:               c.Range,
		ServiceAccountEmail: c.ServiceAccountEmail,
		PrivateKey:          c.PrivateKey,
	}
}
