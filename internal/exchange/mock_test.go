package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theceo1/trustbank-api/internal/types"
)

func TestMockQuotationLifecycle(t *testing.T) {
	mock := NewMock()
	ctx := context.Background()

	quotation, err := mock.CreateQuotation(ctx, "NGN", "USDT", decimal.RequireFromString("100"))
	require.NoError(t, err)
	assert.NotEmpty(t, quotation.QuotationID)
	assert.True(t, quotation.ExpiresAt.After(time.Now()))

	require.NoError(t, mock.ConfirmQuotation(ctx, quotation.QuotationID))

	// Quotations are single-use
	assert.ErrorIs(t, mock.ConfirmQuotation(ctx, quotation.QuotationID), types.ErrNotFound)
}

func TestMockFailureInjection(t *testing.T) {
	mock := NewMock()
	ctx := context.Background()
	amount := decimal.RequireFromString("10")

	mock.FailReleases = true
	err := mock.ReleaseFunds(ctx, "ESC_1", "usr_seller", "USDT", amount)
	assert.ErrorIs(t, err, types.ErrUpstreamFailure)
	assert.Equal(t, 0, mock.ReleaseCount())

	mock.FailReleases = false
	require.NoError(t, mock.ReleaseFunds(ctx, "ESC_1", "usr_seller", "USDT", amount))
	assert.Equal(t, 1, mock.ReleaseCount())

	require.NoError(t, mock.CreditWallet(ctx, "usr_payer", "fiat", "NGN", amount))
	assert.Equal(t, 1, mock.CreditCount())
}
