package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the custody-side provider the escrow and reconciliation flows
// call into. Implementations must treat every call as best-effort: callers
// commit local state first and reconcile upstream failures manually.
type Gateway interface {
	// ReleaseFunds moves escrowed funds to the seller's custodial account.
	ReleaseFunds(ctx context.Context, escrowID, sellerID, currency string, amount decimal.Decimal) error
	// CreditWallet credits a user's wallet after a confirmed deposit.
	CreditWallet(ctx context.Context, userID, walletKind, currency string, amount decimal.Decimal) error
	// CreateQuotation requests a swap quotation from the provider.
	CreateQuotation(ctx context.Context, fromCurrency, toCurrency string, amount decimal.Decimal) (*Quotation, error)
	// ConfirmQuotation executes a previously created quotation.
	ConfirmQuotation(ctx context.Context, quotationID string) error
}

// Quotation is a provider swap quote with a short validity window.
type Quotation struct {
	QuotationID  string          `json:"quotation_id"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	FromAmount   decimal.Decimal `json:"from_amount"`
	ToAmount     decimal.Decimal `json:"to_amount"`
	Rate         decimal.Decimal `json:"rate"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// ErrQuotationExpired is returned when confirming a quotation past its window.
var ErrQuotationExpired = fmt.Errorf("quotation expired")
