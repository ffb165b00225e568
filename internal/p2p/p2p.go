package p2p

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/theceo1/trustbank-api/internal/exchange"
	"github.com/theceo1/trustbank-api/internal/types"
)

// Service governs the order -> trade -> escrow -> settlement/dispute
// lifecycle. Every status move is a conditional update, so concurrent
// callers race safely: the first writer wins, the loser gets ErrInvalidState.
type Service struct {
	db           *Database
	gateway      exchange.Gateway
	escrowWindow time.Duration
}

// NewService creates a new P2P trading service
func NewService(gormDB *gorm.DB, gateway exchange.Gateway, escrowWindow time.Duration) *Service {
	return &Service{
		db:           NewDatabase(gormDB),
		gateway:      gateway,
		escrowWindow: escrowWindow,
	}
}

// CreateOrder creates a new P2P order with idempotency support
// It checks for existing orders with the same idempotency key and returns
// the existing order if found
func (s *Service) CreateOrder(order *types.Order, creatorID, idempotencyKey string) error {
	record, err := s.db.GetIdempotencyRecord(idempotencyKey)
	if err != nil {
		return err
	}

	if record != nil && record.ExpiresAt.After(time.Now()) {
		existing, err := s.db.GetOrder(record.ResourceID)
		if err != nil {
			return err
		}
		if existing == nil {
			return types.ErrNotFound
		}
		*order = *existing
		return nil
	}

	order.OrderID = "ORD_" + uuid.New().String()
	order.CreatorID = creatorID
	order.Status = types.OrderOpen
	order.FilledAmount = decimal.Zero
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()

	return s.db.CreateOrderWithIdempotency(order, idempotencyKey)
}

// AcceptOrder opens a trade against an order. The trade and its escrow are
// created atomically; the trade cannot leave pending_payment without the
// escrow existing.
func (s *Service) AcceptOrder(orderID, actorID string, amount decimal.Decimal) (*types.Trade, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, types.ErrNotFound
	}
	if order.CreatorID == actorID {
		return nil, types.ErrUnauthorized
	}
	if order.Status != types.OrderOpen && order.Status != types.OrderActive {
		return nil, types.ErrInvalidState
	}
	if amount.LessThanOrEqual(decimal.Zero) || amount.GreaterThan(order.Amount.Sub(order.FilledAmount)) {
		return nil, types.ErrInvalidState
	}

	// The order creator sells when advertising a sell, buys otherwise
	buyerID, sellerID := actorID, order.CreatorID
	if order.Side == "buy" {
		buyerID, sellerID = order.CreatorID, actorID
	}

	now := time.Now()
	trade := &types.Trade{
		TradeID:   "TRD_" + uuid.New().String(),
		OrderID:   order.OrderID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		Currency:  order.Currency,
		Amount:    amount,
		Price:     order.Price,
		Status:    types.TradePendingPayment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	escrow := &types.Escrow{
		EscrowID:  "ESC_" + uuid.New().String(),
		TradeID:   trade.TradeID,
		Status:    types.EscrowHeld,
		ExpiresAt: now.Add(s.escrowWindow),
		CreatedAt: now,
		UpdatedAt: now,
	}
	trade.EscrowID = escrow.EscrowID

	if err := s.db.CreateTradeWithEscrow(trade, escrow); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "p2p").
		Str("trade_id", trade.TradeID).
		Str("order_id", order.OrderID).
		Str("escrow_id", escrow.EscrowID).
		Time("expires_at", escrow.ExpiresAt).
		Msg("trade opened with escrow held")

	return trade, nil
}

// ConfirmPayment records the buyer's payment proof and moves the trade to
// paid. Rejected after the escrow's expiry deadline; expiry is enforced
// here, at call time, not by a background sweep.
func (s *Service) ConfirmPayment(tradeID, actorID, proof string) (*types.Trade, error) {
	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, types.ErrNotFound
	}
	if trade.BuyerID != actorID {
		return nil, types.ErrUnauthorized
	}
	if trade.Status != types.TradePendingPayment {
		return nil, types.ErrInvalidState
	}

	escrow, err := s.db.GetEscrowByTradeID(tradeID)
	if err != nil {
		return nil, err
	}
	if escrow == nil {
		return nil, types.ErrNotFound
	}
	if !time.Now().Before(escrow.ExpiresAt) {
		return nil, types.ErrEscrowExpired
	}

	now := time.Now()
	if err := s.db.MarkTradePaid(trade, proof, now); err != nil {
		return nil, err
	}

	trade.Status = types.TradePaid
	trade.PaymentProof = proof
	trade.PaidAt = &now

	log.Info().
		Str("service", "p2p").
		Str("trade_id", trade.TradeID).
		Str("buyer_id", actorID).
		Msg("buyer confirmed payment")

	return trade, nil
}

// CompleteTrade is the seller's release: the trade commits locally as
// completed, then the escrowed funds are transferred upstream. A transfer
// failure does not roll the trade back; it is flagged for manual
// reconciliation because the exchange provider offers no distributed
// transaction support.
func (s *Service) CompleteTrade(ctx context.Context, tradeID, actorID string) (*types.Trade, error) {
	logger := log.With().
		Str("service", "p2p").
		Str("trade_id", tradeID).
		Logger()

	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, types.ErrNotFound
	}
	if trade.SellerID != actorID {
		return nil, types.ErrUnauthorized
	}
	if trade.Status != types.TradePaid {
		return nil, types.ErrInvalidState
	}

	now := time.Now()
	if err := s.db.MarkTradeCompleted(trade, now); err != nil {
		return nil, err
	}
	trade.Status = types.TradeCompleted
	trade.CompletedAt = &now

	if err := s.gateway.ReleaseFunds(ctx, trade.EscrowID, trade.SellerID, trade.Currency, trade.Amount); err != nil {
		logger.Error().Err(err).
			Str("escrow_id", trade.EscrowID).
			Msg("reconciliation_required: fund release failed after local completion")
		if err := s.db.MarkEscrowReleaseFailed(trade.EscrowID); err != nil {
			logger.Error().Err(err).Msg("failed to flag escrow for reconciliation")
		}
	}

	if err := s.db.ApplyFill(trade.OrderID, trade.Amount); err != nil {
		logger.Error().Err(err).Str("order_id", trade.OrderID).Msg("failed to apply fill to order")
	}

	logger.Info().
		Str("seller_id", actorID).
		Str("amount", trade.Amount.String()).
		Msg("trade completed")

	return trade, nil
}

// OpenDispute freezes a trade pending admin resolution. Either party may
// dispute from pending_payment or paid.
func (s *Service) OpenDispute(tradeID, actorID, reason, evidence string) (*types.Dispute, error) {
	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, types.ErrNotFound
	}

	var respondentID string
	switch actorID {
	case trade.BuyerID:
		respondentID = trade.SellerID
	case trade.SellerID:
		respondentID = trade.BuyerID
	default:
		return nil, types.ErrUnauthorized
	}

	if !trade.Status.CanTransition(types.TradeDisputed) {
		return nil, types.ErrInvalidState
	}

	now := time.Now()
	dispute := &types.Dispute{
		DisputeID:    "DSP_" + uuid.New().String(),
		TradeID:      trade.TradeID,
		InitiatorID:  actorID,
		RespondentID: respondentID,
		Reason:       reason,
		Evidence:     evidence,
		Status:       types.DisputeOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.FreezeTradeWithDispute(trade, dispute); err != nil {
		return nil, err
	}

	log.Warn().
		Str("service", "p2p").
		Str("trade_id", trade.TradeID).
		Str("dispute_id", dispute.DisputeID).
		Str("initiator_id", actorID).
		Msg("trade frozen by dispute")

	return dispute, nil
}

// GetTradeForParty returns a trade to one of its parties.
func (s *Service) GetTradeForParty(tradeID, actorID string) (*types.Trade, error) {
	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, types.ErrNotFound
	}
	if trade.BuyerID != actorID && trade.SellerID != actorID {
		return nil, types.ErrUnauthorized
	}
	return trade, nil
}

// GetOrder retrieves an order by its ID
func (s *Service) GetOrder(orderID string) (*types.Order, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, types.ErrNotFound
	}
	return order, nil
}
