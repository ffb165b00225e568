package types

// OrderStatus is the lifecycle status of a P2P order.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderActive    OrderStatus = "active"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// TradeStatus is the lifecycle status of a P2P trade. Transitions are
// enforced centrally via CanTransition and applied with conditional
// updates so concurrent writers cannot both leave the same state.
type TradeStatus string

const (
	TradePendingPayment TradeStatus = "pending_payment"
	TradePaid           TradeStatus = "paid"
	TradeCompleted      TradeStatus = "completed"
	TradeDisputed       TradeStatus = "disputed"
	TradeCancelled      TradeStatus = "cancelled"
)

var tradeTransitions = map[TradeStatus][]TradeStatus{
	TradePendingPayment: {TradePaid, TradeDisputed},
	TradePaid:           {TradeCompleted, TradeDisputed},
}

// CanTransition reports whether moving from s to the given status is legal.
func (s TradeStatus) CanTransition(to TradeStatus) bool {
	for _, next := range tradeTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the trade can no longer change state through
// the normal lifecycle. Disputed trades are resolved out-of-band by an
// admin, so from this state machine's perspective they are terminal.
func (s TradeStatus) IsTerminal() bool {
	return s == TradeCompleted || s == TradeDisputed || s == TradeCancelled
}

// EscrowStatus mirrors the trade status of the escrow's trade.
type EscrowStatus string

const (
	EscrowHeld      EscrowStatus = "held"
	EscrowPaid      EscrowStatus = "paid"
	EscrowCompleted EscrowStatus = "completed"
	EscrowDisputed  EscrowStatus = "disputed"
)

// DisputeStatus is the lifecycle status of a dispute record.
type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
)

// TransactionType classifies a ledger transaction.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionSwap       TransactionType = "swap"
)

// TransactionStatus is the reconciliation status of a ledger transaction.
type TransactionStatus string

const (
	TxnPending         TransactionStatus = "pending"
	TxnProcessing      TransactionStatus = "processing"
	TxnPaymentReceived TransactionStatus = "payment_received"
	TxnUserMarkedPaid  TransactionStatus = "user_marked_paid"
	TxnSuccess         TransactionStatus = "success"
	TxnCompleted       TransactionStatus = "completed"
	TxnFailed          TransactionStatus = "failed"
)

// IsTerminal reports whether the status is one-way: once a transaction
// reaches it, further webhook deliveries for the same reference are no-ops.
func (s TransactionStatus) IsTerminal() bool {
	return s == TxnSuccess || s == TxnCompleted || s == TxnFailed
}

// IsKnown reports whether the status is one this service understands.
// Webhook payloads carrying anything else are dropped at the boundary.
func (s TransactionStatus) IsKnown() bool {
	switch s {
	case TxnPending, TxnProcessing, TxnPaymentReceived, TxnUserMarkedPaid,
		TxnSuccess, TxnCompleted, TxnFailed:
		return true
	}
	return false
}
