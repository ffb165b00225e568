package p2p

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/theceo1/trustbank-api/internal/database"
	"github.com/theceo1/trustbank-api/internal/exchange"
	"github.com/theceo1/trustbank-api/internal/types"
)

const (
	sellerID = "usr_seller"
	buyerID  = "usr_buyer"
)

func newTestService(t *testing.T, window time.Duration) (*Service, *exchange.Mock, *gorm.DB) {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "p2p.db") + "?_busy_timeout=5000"
	db, err := database.NewDatabase(dsn)
	require.NoError(t, err)

	mock := exchange.NewMock()
	return NewService(db, mock, window), mock, db
}

// openTrade creates a sell order from the seller and accepts it as the buyer.
func openTrade(t *testing.T, svc *Service, amount string) *types.Trade {
	t.Helper()

	order := &types.Order{
		Side:     "sell",
		Currency: "USDT",
		Amount:   decimal.RequireFromString("100"),
		Price:    decimal.RequireFromString("1590.50"),
	}
	require.NoError(t, svc.CreateOrder(order, sellerID, uuid.New().String()))

	trade, err := svc.AcceptOrder(order.OrderID, buyerID, decimal.RequireFromString(amount))
	require.NoError(t, err)
	require.Equal(t, types.TradePendingPayment, trade.Status)
	require.NotEmpty(t, trade.EscrowID)
	return trade
}

func TestTradeLifecycle(t *testing.T) {
	svc, mock, _ := newTestService(t, time.Minute)
	trade := openTrade(t, svc, "100")

	// Escrow exists and is held before any transition
	escrow, err := svc.db.GetEscrowByTradeID(trade.TradeID)
	require.NoError(t, err)
	require.NotNil(t, escrow)
	assert.Equal(t, types.EscrowHeld, escrow.Status)

	// Buyer confirms payment
	updated, err := svc.ConfirmPayment(trade.TradeID, buyerID, "bank-ref-1")
	require.NoError(t, err)
	assert.Equal(t, types.TradePaid, updated.Status)
	assert.Equal(t, "bank-ref-1", updated.PaymentProof)
	require.NotNil(t, updated.PaidAt)

	escrow, err = svc.db.GetEscrowByTradeID(trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, types.EscrowPaid, escrow.Status)
	require.NotNil(t, escrow.PaymentConfirmedAt)

	// Seller releases
	completed, err := svc.CompleteTrade(context.Background(), trade.TradeID, sellerID)
	require.NoError(t, err)
	assert.Equal(t, types.TradeCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	assert.Equal(t, 1, mock.ReleaseCount())

	escrow, err = svc.db.GetEscrowByTradeID(trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, types.EscrowCompleted, escrow.Status)
	assert.False(t, escrow.ReleaseFailed)

	// Order is fully filled and closed
	order, err := svc.GetOrder(trade.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderCompleted, order.Status)
	assert.True(t, order.FilledAmount.Equal(decimal.RequireFromString("100")))
}

func TestConfirmPaymentUnauthorized(t *testing.T) {
	svc, _, _ := newTestService(t, time.Minute)
	trade := openTrade(t, svc, "50")

	_, err := svc.ConfirmPayment(trade.TradeID, sellerID, "proof")
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	current, err := svc.db.GetTrade(trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, types.TradePendingPayment, current.Status)
}

func TestConfirmPaymentAfterExpiry(t *testing.T) {
	svc, _, _ := newTestService(t, -time.Minute)
	trade := openTrade(t, svc, "50")

	_, err := svc.ConfirmPayment(trade.TradeID, buyerID, "proof")
	assert.ErrorIs(t, err, types.ErrEscrowExpired)

	// Expiry is enforced reactively; the trade stays pending_payment
	current, err := svc.db.GetTrade(trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, types.TradePendingPayment, current.Status)
}

func TestConfirmPaymentTwice(t *testing.T) {
	svc, _, _ := newTestService(t, time.Minute)
	trade := openTrade(t, svc, "50")

	_, err := svc.ConfirmPayment(trade.TradeID, buyerID, "proof")
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(trade.TradeID, buyerID, "proof-again")
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestConcurrentConfirmSingleWinner(t *testing.T) {
	svc, _, _ := newTestService(t, time.Minute)
	trade := openTrade(t, svc, "50")

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ConfirmPayment(trade.TradeID, buyerID, "proof")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, losers int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, types.ErrInvalidState)
			losers++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, losers)
}

func TestCompleteAfterEscrowExpiry(t *testing.T) {
	// Expiry only gates payment confirmation; a trade confirmed in time can
	// still be completed after the escrow deadline has passed.
	svc, mock, _ := newTestService(t, 100*time.Millisecond)
	trade := openTrade(t, svc, "50")

	_, err := svc.ConfirmPayment(trade.TradeID, buyerID, "proof")
	require.NoError(t, err)

	time.Sleep(250 * time.Millisecond)

	completed, err := svc.CompleteTrade(context.Background(), trade.TradeID, sellerID)
	require.NoError(t, err)
	assert.Equal(t, types.TradeCompleted, completed.Status)
	assert.Equal(t, 1, mock.ReleaseCount())
}

func TestCompleteTradeAuthorization(t *testing.T) {
	svc, mock, _ := newTestService(t, time.Minute)
	trade := openTrade(t, svc, "50")

	_, err := svc.ConfirmPayment(trade.TradeID, buyerID, "proof")
	require.NoError(t, err)

	// Buyer cannot release
	_, err = svc.CompleteTrade(context.Background(), trade.TradeID, buyerID)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	assert.Equal(t, 0, mock.ReleaseCount())

	current, err := svc.db.GetTrade(trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, types.TradePaid, current.Status)
}

func TestCompleteTradeBeforePayment(t *testing.T) {
	svc, mock, _ := newTestService(t, time.Minute)
	trade := openTrade(t, svc, "50")

	_, err := svc.CompleteTrade(context.Background(), trade.TradeID, sellerID)
	assert.ErrorIs(t, err, types.ErrInvalidState)
	assert.Equal(t, 0, mock.ReleaseCount())
}

func TestReleaseFailureKeepsTradeCompleted(t *testing.T) {
	svc, mock, _ := newTestService(t, time.Minute)
	trade := openTrade(t, svc, "50")

	_, err := svc.ConfirmPayment(trade.TradeID, buyerID, "proof")
	require.NoError(t, err)

	mock.FailReleases = true
	completed, err := svc.CompleteTrade(context.Background(), trade.TradeID, sellerID)
	require.NoError(t, err)
	assert.Equal(t, types.TradeCompleted, completed.Status)

	// The escrow is flagged for manual reconciliation instead of rolling back
	escrow, err := svc.db.GetEscrowByTradeID(trade.TradeID)
	require.NoError(t, err)
	assert.True(t, escrow.ReleaseFailed)
	assert.Equal(t, types.EscrowCompleted, escrow.Status)
}

func TestDisputeReachability(t *testing.T) {
	t.Run("FromPendingPayment", func(t *testing.T) {
		svc, _, _ := newTestService(t, time.Minute)
		trade := openTrade(t, svc, "50")

		dispute, err := svc.OpenDispute(trade.TradeID, buyerID, "seller unresponsive", "")
		require.NoError(t, err)
		assert.Equal(t, types.DisputeOpen, dispute.Status)
		assert.Equal(t, buyerID, dispute.InitiatorID)
		assert.Equal(t, sellerID, dispute.RespondentID)

		current, err := svc.db.GetTrade(trade.TradeID)
		require.NoError(t, err)
		assert.Equal(t, types.TradeDisputed, current.Status)

		escrow, err := svc.db.GetEscrowByTradeID(trade.TradeID)
		require.NoError(t, err)
		assert.Equal(t, types.EscrowDisputed, escrow.Status)
	})

	t.Run("FromPaid", func(t *testing.T) {
		svc, _, _ := newTestService(t, time.Minute)
		trade := openTrade(t, svc, "50")
		_, err := svc.ConfirmPayment(trade.TradeID, buyerID, "proof")
		require.NoError(t, err)

		dispute, err := svc.OpenDispute(trade.TradeID, sellerID, "payment never arrived", "statement.pdf")
		require.NoError(t, err)
		assert.Equal(t, buyerID, dispute.RespondentID)
	})

	t.Run("FromCompleted", func(t *testing.T) {
		svc, _, _ := newTestService(t, time.Minute)
		trade := openTrade(t, svc, "50")
		_, err := svc.ConfirmPayment(trade.TradeID, buyerID, "proof")
		require.NoError(t, err)
		_, err = svc.CompleteTrade(context.Background(), trade.TradeID, sellerID)
		require.NoError(t, err)

		_, err = svc.OpenDispute(trade.TradeID, buyerID, "too late", "")
		assert.ErrorIs(t, err, types.ErrInvalidState)
	})

	t.Run("FromDisputed", func(t *testing.T) {
		svc, _, _ := newTestService(t, time.Minute)
		trade := openTrade(t, svc, "50")
		_, err := svc.OpenDispute(trade.TradeID, buyerID, "first", "")
		require.NoError(t, err)

		_, err = svc.OpenDispute(trade.TradeID, sellerID, "second", "")
		assert.ErrorIs(t, err, types.ErrInvalidState)
	})

	t.Run("Stranger", func(t *testing.T) {
		svc, _, _ := newTestService(t, time.Minute)
		trade := openTrade(t, svc, "50")

		_, err := svc.OpenDispute(trade.TradeID, "usr_stranger", "not mine", "")
		assert.ErrorIs(t, err, types.ErrUnauthorized)
	})
}

func TestAcceptOrderValidation(t *testing.T) {
	svc, _, _ := newTestService(t, time.Minute)

	order := &types.Order{
		Side:     "sell",
		Currency: "USDT",
		Amount:   decimal.RequireFromString("100"),
		Price:    decimal.RequireFromString("10"),
	}
	require.NoError(t, svc.CreateOrder(order, sellerID, uuid.New().String()))

	// Creator cannot take their own order
	_, err := svc.AcceptOrder(order.OrderID, sellerID, decimal.RequireFromString("10"))
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	// Cannot accept more than the unfilled remainder
	_, err = svc.AcceptOrder(order.OrderID, buyerID, decimal.RequireFromString("150"))
	assert.ErrorIs(t, err, types.ErrInvalidState)

	_, err = svc.AcceptOrder("ORD_missing", buyerID, decimal.RequireFromString("10"))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestAcceptBuyOrderSwapsParties(t *testing.T) {
	svc, _, _ := newTestService(t, time.Minute)

	order := &types.Order{
		Side:     "buy",
		Currency: "USDT",
		Amount:   decimal.RequireFromString("100"),
		Price:    decimal.RequireFromString("10"),
	}
	require.NoError(t, svc.CreateOrder(order, buyerID, uuid.New().String()))

	trade, err := svc.AcceptOrder(order.OrderID, sellerID, decimal.RequireFromString("40"))
	require.NoError(t, err)
	assert.Equal(t, buyerID, trade.BuyerID)
	assert.Equal(t, sellerID, trade.SellerID)
}

func TestCreateOrderIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t, time.Minute)
	key := uuid.New().String()

	first := &types.Order{
		Side:     "sell",
		Currency: "USDT",
		Amount:   decimal.RequireFromString("100"),
		Price:    decimal.RequireFromString("10"),
	}
	require.NoError(t, svc.CreateOrder(first, sellerID, key))

	second := &types.Order{
		Side:     "sell",
		Currency: "USDT",
		Amount:   decimal.RequireFromString("999"),
		Price:    decimal.RequireFromString("1"),
	}
	require.NoError(t, svc.CreateOrder(second, sellerID, key))
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.True(t, second.Amount.Equal(first.Amount))
}

func TestPartialFillKeepsOrderActive(t *testing.T) {
	svc, _, _ := newTestService(t, time.Minute)
	trade := openTrade(t, svc, "40")

	_, err := svc.ConfirmPayment(trade.TradeID, buyerID, "proof")
	require.NoError(t, err)
	_, err = svc.CompleteTrade(context.Background(), trade.TradeID, sellerID)
	require.NoError(t, err)

	order, err := svc.GetOrder(trade.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderActive, order.Status)
	assert.True(t, order.FilledAmount.Equal(decimal.RequireFromString("40")))
}

func TestGetTradeForParty(t *testing.T) {
	svc, _, _ := newTestService(t, time.Minute)
	trade := openTrade(t, svc, "50")

	for _, actor := range []string{buyerID, sellerID} {
		got, err := svc.GetTradeForParty(trade.TradeID, actor)
		require.NoError(t, err)
		assert.Equal(t, trade.TradeID, got.TradeID)
	}

	_, err := svc.GetTradeForParty(trade.TradeID, "usr_stranger")
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}
