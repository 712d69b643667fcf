package ledger

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/tradesignals/checkout-api/internal/checkout"
)

type SheetsOptions struct {
	SpreadsheetID       string
	Range               string
	ServiceAccountEmail string
	PrivateKey          string

	// Endpoint and HTTPClient override the Google API target; used by tests.
	Endpoint   string
	HTTPClient *http.Client
}

// Sheets appends ledger rows to a Google spreadsheet. The sheet has no
// uniqueness of its own; wrap it in Deduped before handing it to a writer.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	rng           string
}

// NewSheets never fails on missing credentials: the returned recorder
// reports ErrLedgerUnconfigured on every Append so the caller can skip it.
func NewSheets(ctx context.Context, o SheetsOptions) (*Sheets, error) {
	s := &Sheets{spreadsheetID: o.SpreadsheetID, rng: o.Range}
	if s.rng == "" {
		s.rng = "Sheet1!A:G"
	}

	client := o.HTTPClient
	if client == nil {
		if o.ServiceAccountEmail == "" || o.PrivateKey == "" {
			return s, nil
		}
		conf := &jwt.Config{
			Email:      o.ServiceAccountEmail,
			PrivateKey: []byte(o.PrivateKey),
			Scopes:     []string{sheets.SpreadsheetsScope},
			TokenURL:   google.JWTTokenURL,
		}
		client = conf.Client(context.WithoutCancel(ctx))
	}
	if o.SpreadsheetID == "" {
		return s, nil
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if o.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(o.Endpoint))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	s.svc = svc
	return s, nil
}

func (s *Sheets) Configured() bool { return s.svc != nil }

func (s *Sheets) Append(ctx context.Context, row checkout.LedgerRow) error {
	if s.svc == nil {
		return checkout.ErrLedgerUnconfigured
	}

	values := row.Values()
	values[3] = MajorUnits(row.AmountMinor, row.Currency)
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}

	// RAW keeps client-supplied text such as the country from being parsed as a formula.
	_, err := s.svc.Spreadsheets.Values.
		Append(s.spreadsheetID, s.rng, &sheets.ValueRange{Values: [][]interface{}{cells}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("%w: %w", checkout.ErrLedgerWrite, err)
	}
	return nil
}
