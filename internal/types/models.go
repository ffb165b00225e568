package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is a P2P advertisement a counterparty can accept into a trade.
type Order struct {
	gorm.Model   `json:"-"`
	OrderID      string          `gorm:"uniqueIndex" json:"order_id"`
	CreatorID    string          `json:"creator_id"`
	Side         string          `json:"side"` // buy or sell
	Currency     string          `json:"currency"`
	Amount       decimal.Decimal `gorm:"type:decimal(32,8)" json:"amount"`
	Price        decimal.Decimal `gorm:"type:decimal(32,8)" json:"price"`
	FilledAmount decimal.Decimal `gorm:"type:decimal(32,8)" json:"filled_amount"`
	Status       OrderStatus     `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Trade is an accepted order between a buyer and a seller. It is never
// physically deleted; terminal status is the only form of destruction.
type Trade struct {
	gorm.Model   `json:"-"`
	TradeID      string          `gorm:"uniqueIndex" json:"trade_id"`
	OrderID      string          `gorm:"index" json:"order_id"`
	BuyerID      string          `json:"buyer_id"`
	SellerID     string          `json:"seller_id"`
	Currency     string          `json:"currency"`
	Amount       decimal.Decimal `gorm:"type:decimal(32,8)" json:"amount"`
	Price        decimal.Decimal `gorm:"type:decimal(32,8)" json:"price"`
	Status       TradeStatus     `json:"status"`
	EscrowID     string          `json:"escrow_id"`
	PaymentProof string          `json:"payment_proof,omitempty"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Escrow is the custodial hold record tied 1:1 to a trade. It is created in
// the same transaction as its trade and moves in lock-step with it.
type Escrow struct {
	gorm.Model         `json:"-"`
	EscrowID           string       `gorm:"uniqueIndex" json:"escrow_id"`
	TradeID            string       `gorm:"uniqueIndex" json:"trade_id"`
	Status             EscrowStatus `json:"status"`
	ExpiresAt          time.Time    `json:"expires_at"`
	PaymentConfirmedAt *time.Time   `json:"payment_confirmed_at,omitempty"`
	// ReleaseFailed marks a trade that committed locally as completed but
	// whose custody transfer failed upstream; it needs manual reconciliation.
	ReleaseFailed  bool       `json:"release_failed"`
	ExpiredFlagged bool       `json:"expired_flagged"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Dispute freezes a trade pending out-of-band admin resolution.
type Dispute struct {
	gorm.Model   `json:"-"`
	DisputeID    string        `gorm:"uniqueIndex" json:"dispute_id"`
	TradeID      string        `gorm:"index" json:"trade_id"`
	InitiatorID  string        `json:"initiator_id"`
	RespondentID string        `json:"respondent_id"`
	Reason       string        `json:"reason"`
	Evidence     string        `json:"evidence,omitempty"`
	Status       DisputeStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Transaction is a fiat/crypto ledger row. Reference is globally unique and
// is the idempotency key for all webhook processing concerning the row.
type Transaction struct {
	gorm.Model `json:"-"`
	TransactionID string            `gorm:"uniqueIndex" json:"transaction_id"`
	UserID        string            `gorm:"index" json:"user_id"`
	Type          TransactionType   `json:"type"`
	Amount        decimal.Decimal   `gorm:"type:decimal(32,8)" json:"amount"`
	Currency      string            `json:"currency"`
	Status        TransactionStatus `json:"status"`
	Reference     string            `gorm:"uniqueIndex" json:"reference"`
	Metadata      string            `json:"metadata,omitempty"` // JSON audit trail
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// WebhookEvent is an audit row written for every webhook delivery that
// passed signature and schema validation.
type WebhookEvent struct {
	gorm.Model `json:"-"`
	EventID    string    `gorm:"uniqueIndex" json:"event_id"`
	Provider   string    `json:"provider"`
	Reference  string    `gorm:"index" json:"reference"`
	Status     string    `json:"status"`
	Payload    string    `json:"payload"`
	Applied    bool      `json:"applied"`
	CreatedAt  time.Time `json:"created_at"`
}

// IdempotencyRecord maps a client-supplied idempotency key to the resource
// it created, so replayed creates return the original resource.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}
