package p2p

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/theceo1/trustbank-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) GetTrade(tradeID string) (*types.Trade, error) {
	var trade types.Trade
	if err := d.db.Where("trade_id = ?", tradeID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

func (d *Database) GetEscrowByTradeID(tradeID string) (*types.Escrow, error) {
	var escrow types.Escrow
	if err := d.db.Where("trade_id = ?", tradeID).First(&escrow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &escrow, nil
}

func (d *Database) GetDisputeByTradeID(tradeID string) (*types.Dispute, error) {
	var dispute types.Dispute
	if err := d.db.Where("trade_id = ?", tradeID).First(&dispute).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dispute, nil
}

// GetIdempotencyRecord retrieves an idempotency record by key
func (d *Database) GetIdempotencyRecord(key string) (*types.IdempotencyRecord, error) {
	var record types.IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// CreateOrderWithIdempotency creates a new order and idempotency record in a transaction
func (d *Database) CreateOrderWithIdempotency(order *types.Order, idempotencyKey string) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}

		record := types.IdempotencyRecord{
			IdempotencyKey: idempotencyKey,
			ResourceID:     order.OrderID,
			ResourceType:   "order",
			ExpiresAt:      time.Now().Add(24 * time.Hour),
		}
		return tx.Create(&record).Error
	})
}

// CreateTradeWithEscrow creates the trade and its escrow atomically and
// activates the order. The order activation is conditional so a cancelled
// order cannot be accepted concurrently.
func (d *Database) CreateTradeWithEscrow(trade *types.Trade, escrow *types.Escrow) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&types.Order{}).
			Where("order_id = ? AND status IN ?", trade.OrderID,
				[]types.OrderStatus{types.OrderOpen, types.OrderActive}).
			Updates(map[string]interface{}{
				"status":     types.OrderActive,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return types.ErrInvalidState
		}

		if err := tx.Create(trade).Error; err != nil {
			return err
		}
		return tx.Create(escrow).Error
	})
}

// TransitionTrade conditionally moves a trade between statuses. The update
// only applies when the row still holds the expected prior status, so of two
// concurrent writers exactly one wins; the loser sees ErrInvalidState.
func (d *Database) TransitionTrade(tradeID string, from, to types.TradeStatus, updates map[string]interface{}) error {
	return transitionTrade(d.db, tradeID, []types.TradeStatus{from}, to, updates)
}

func transitionTrade(db *gorm.DB, tradeID string, from []types.TradeStatus, to types.TradeStatus, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	updates["updated_at"] = time.Now()

	result := db.Model(&types.Trade{}).
		Where("trade_id = ? AND status IN ?", tradeID, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return types.ErrInvalidState
	}
	return nil
}

func transitionEscrow(db *gorm.DB, escrowID string, from, to types.EscrowStatus, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	updates["updated_at"] = time.Now()

	result := db.Model(&types.Escrow{}).
		Where("escrow_id = ? AND status = ?", escrowID, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return types.ErrInvalidState
	}
	return nil
}

// MarkTradePaid applies the pending_payment -> paid transition to the trade
// and its escrow in one transaction.
func (d *Database) MarkTradePaid(trade *types.Trade, proof string, now time.Time) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		err := transitionTrade(tx, trade.TradeID,
			[]types.TradeStatus{types.TradePendingPayment}, types.TradePaid,
			map[string]interface{}{
				"payment_proof": proof,
				"paid_at":       now,
			})
		if err != nil {
			return err
		}

		return transitionEscrow(tx, trade.EscrowID, types.EscrowHeld, types.EscrowPaid,
			map[string]interface{}{"payment_confirmed_at": now})
	})
}

// MarkTradeCompleted applies the paid -> completed transition to the trade
// and its escrow in one transaction.
func (d *Database) MarkTradeCompleted(trade *types.Trade, now time.Time) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		err := transitionTrade(tx, trade.TradeID,
			[]types.TradeStatus{types.TradePaid}, types.TradeCompleted,
			map[string]interface{}{"completed_at": now})
		if err != nil {
			return err
		}

		return transitionEscrow(tx, trade.EscrowID, types.EscrowPaid, types.EscrowCompleted, nil)
	})
}

// FreezeTradeWithDispute creates the dispute and freezes the trade and
// escrow atomically. The trade condition covers both disputable statuses so
// the first disputer wins regardless of where the trade currently sits.
func (d *Database) FreezeTradeWithDispute(trade *types.Trade, dispute *types.Dispute) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		err := transitionTrade(tx, trade.TradeID,
			[]types.TradeStatus{types.TradePendingPayment, types.TradePaid},
			types.TradeDisputed, nil)
		if err != nil {
			return err
		}

		result := tx.Model(&types.Escrow{}).
			Where("escrow_id = ? AND status IN ?", trade.EscrowID,
				[]types.EscrowStatus{types.EscrowHeld, types.EscrowPaid}).
			Updates(map[string]interface{}{
				"status":     types.EscrowDisputed,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return types.ErrInvalidState
		}

		return tx.Create(dispute).Error
	})
}

// MarkEscrowReleaseFailed flags an escrow whose custody transfer failed
// after the trade had already committed as completed.
func (d *Database) MarkEscrowReleaseFailed(escrowID string) error {
	return d.db.Model(&types.Escrow{}).
		Where("escrow_id = ?", escrowID).
		Updates(map[string]interface{}{
			"release_failed": true,
			"updated_at":     time.Now(),
		}).Error
}

// ApplyFill accumulates a completed trade's amount on its order and closes
// the order once fully filled.
func (d *Database) ApplyFill(orderID string, amount decimal.Decimal) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		var order types.Order
		if err := tx.Where("order_id = ?", orderID).First(&order).Error; err != nil {
			return err
		}

		order.FilledAmount = order.FilledAmount.Add(amount)
		status := order.Status
		if order.FilledAmount.GreaterThanOrEqual(order.Amount) {
			status = types.OrderCompleted
		}

		return tx.Model(&types.Order{}).
			Where("order_id = ?", orderID).
			Updates(map[string]interface{}{
				"filled_amount": order.FilledAmount,
				"status":        status,
				"updated_at":    time.Now(),
			}).Error
	})
}
