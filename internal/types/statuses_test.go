package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTradeTransitions(t *testing.T) {
	assert.True(t, TradePendingPayment.CanTransition(TradePaid))
	assert.True(t, TradePendingPayment.CanTransition(TradeDisputed))
	assert.True(t, TradePaid.CanTransition(TradeCompleted))
	assert.True(t, TradePaid.CanTransition(TradeDisputed))

	// Terminal states permit nothing
	for _, from := range []TradeStatus{TradeCompleted, TradeDisputed, TradeCancelled} {
		for _, to := range []TradeStatus{TradePendingPayment, TradePaid, TradeCompleted, TradeDisputed} {
			assert.False(t, from.CanTransition(to), "%s -> %s", from, to)
		}
	}

	// No skipping straight to completed
	assert.False(t, TradePendingPayment.CanTransition(TradeCompleted))
}

func TestTradeTerminal(t *testing.T) {
	assert.False(t, TradePendingPayment.IsTerminal())
	assert.False(t, TradePaid.IsTerminal())
	assert.True(t, TradeCompleted.IsTerminal())
	assert.True(t, TradeDisputed.IsTerminal())
	assert.True(t, TradeCancelled.IsTerminal())
}

func TestTransactionTerminal(t *testing.T) {
	for _, s := range []TransactionStatus{TxnSuccess, TxnCompleted, TxnFailed} {
		assert.True(t, s.IsTerminal(), string(s))
	}
	for _, s := range []TransactionStatus{TxnPending, TxnProcessing, TxnPaymentReceived, TxnUserMarkedPaid} {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

func TestTransactionKnownStatuses(t *testing.T) {
	assert.True(t, TxnPaymentReceived.IsKnown())
	assert.False(t, TransactionStatus("exploded").IsKnown())
	assert.False(t, TransactionStatus("").IsKnown())
}
