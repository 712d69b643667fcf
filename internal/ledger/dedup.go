package ledger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tradesignals/checkout-api/internal/checkout"
	"github.com/tradesignals/checkout-api/internal/redisx"
)

// SheetsScope namespaces the dedup claims of every process that writes
// the spreadsheet ledger, so the API and the export worker share them.
const SheetsScope = "ledger-sheets"

// Deduped holds a recorder with no uniqueness of its own to one row per
// payment id. The claim is dropped again when the append fails so a later
// attempt can write the row.
type Deduped struct {
	Next  checkout.Recorder
	Redis redis.Cmdable
	Scope string
}

func (d *Deduped) Append(ctx context.Context, row checkout.LedgerRow) error {
	first, err := redisx.MarkOnce(ctx, d.Redis, d.Scope, row.PaymentID)
	if err != nil {
		return fmt.Errorf("%w: dedup claim: %w", checkout.ErrLedgerWrite, err)
	}
	if !first {
		return checkout.ErrLedgerDuplicate
	}

	if err := d.Next.Append(ctx, row); err != nil {
		if rerr := redisx.Release(context.WithoutCancel(ctx), d.Redis, d.Scope, row.PaymentID); rerr != nil {
			return fmt.Errorf("%w (release claim: %v)", err, rerr)
		}
		return err
	}
	return nil
}
