package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/theceo1/trustbank-api/internal/types"
)

// Release records a single ReleaseFunds call made against the mock.
type Release struct {
	EscrowID string
	SellerID string
	Currency string
	Amount   decimal.Decimal
}

// Credit records a single CreditWallet call made against the mock.
type Credit struct {
	UserID   string
	Wallet   string
	Currency string
	Amount   decimal.Decimal
}

// Mock is an in-memory Gateway used by tests and the simulation. Failures
// can be injected to exercise the post-commit reconciliation paths.
type Mock struct {
	mu sync.Mutex

	FailReleases bool
	FailCredits  bool

	Releases   []Release
	Credits    []Credit
	quotations map[string]*Quotation
}

// NewMock creates a mock gateway.
func NewMock() *Mock {
	return &Mock{quotations: make(map[string]*Quotation)}
}

func (m *Mock) ReleaseFunds(_ context.Context, escrowID, sellerID, currency string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailReleases {
		return fmt.Errorf("%w: custody transfer rejected", types.ErrUpstreamFailure)
	}

	m.Releases = append(m.Releases, Release{
		EscrowID: escrowID,
		SellerID: sellerID,
		Currency: currency,
		Amount:   amount,
	})

	log.Debug().
		Str("escrow_id", escrowID).
		Str("seller_id", sellerID).
		Str("amount", amount.String()).
		Msg("mock exchange released funds")

	return nil
}

func (m *Mock) CreditWallet(_ context.Context, userID, walletKind, currency string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCredits {
		return fmt.Errorf("%w: wallet credit rejected", types.ErrUpstreamFailure)
	}

	m.Credits = append(m.Credits, Credit{
		UserID:   userID,
		Wallet:   walletKind,
		Currency: currency,
		Amount:   amount,
	})

	return nil
}

func (m *Mock) CreateQuotation(_ context.Context, fromCurrency, toCurrency string, amount decimal.Decimal) (*Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Flat mock rate; tests only care about the quotation lifecycle
	rate := decimal.NewFromInt(1)
	quotation := &Quotation{
		QuotationID:  "QUO_" + uuid.New().String(),
		FromCurrency: fromCurrency,
		ToCurrency:   toCurrency,
		FromAmount:   amount,
		ToAmount:     amount.Mul(rate),
		Rate:         rate,
		ExpiresAt:    time.Now().Add(30 * time.Second),
	}
	m.quotations[quotation.QuotationID] = quotation

	return quotation, nil
}

func (m *Mock) ConfirmQuotation(_ context.Context, quotationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	quotation, ok := m.quotations[quotationID]
	if !ok {
		return types.ErrNotFound
	}
	if time.Now().After(quotation.ExpiresAt) {
		return ErrQuotationExpired
	}

	delete(m.quotations, quotationID)
	return nil
}

// ReleaseCount returns how many fund releases the mock has performed.
func (m *Mock) ReleaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Releases)
}

// CreditCount returns how many wallet credits the mock has performed.
func (m *Mock) CreditCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Credits)
}
