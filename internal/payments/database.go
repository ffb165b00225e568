package payments

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/theceo1/trustbank-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateTransaction(txn *types.Transaction) error {
	return d.db.Create(txn).Error
}

func (d *Database) GetTransactionByReference(reference string) (*types.Transaction, error) {
	var txn types.Transaction
	if err := d.db.Where("reference = ?", reference).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (d *Database) CreateWebhookEvent(event *types.WebhookEvent) error {
	return d.db.Create(event).Error
}

// ApplyStatus moves a transaction to the given status and appends the raw
// event to its metadata audit trail. The update is conditional on the status
// the caller just read, so concurrent deliveries of the same reference
// cannot both apply: the loser reports applied=false.
//
// A transaction already in a terminal status is never touched; that is the
// idempotency guarantee for at-least-once webhook delivery.
func (d *Database) ApplyStatus(reference string, to types.TransactionStatus, rawEvent json.RawMessage) (*types.Transaction, bool, error) {
	var txn types.Transaction
	applied := false

	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("reference = ?", reference).First(&txn).Error; err != nil {
			return err
		}
		if txn.Status.IsTerminal() {
			return nil
		}

		metadata, err := appendEvent(txn.Metadata, rawEvent)
		if err != nil {
			return err
		}

		result := tx.Model(&types.Transaction{}).
			Where("reference = ? AND status = ?", reference, txn.Status).
			Updates(map[string]interface{}{
				"status":     to,
				"metadata":   metadata,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Lost the race to a concurrent delivery
			return nil
		}

		txn.Status = to
		txn.Metadata = metadata
		applied = true
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, types.ErrNotFound
		}
		return nil, false, err
	}

	return &txn, applied, nil
}

// MarkUserPaid flags a pending transaction as self-reported paid by the
// payer. Advisory only; it gates the manual review queue.
func (d *Database) MarkUserPaid(reference string) (bool, error) {
	result := d.db.Model(&types.Transaction{}).
		Where("reference = ? AND status = ?", reference, types.TxnPending).
		Updates(map[string]interface{}{
			"status":     types.TxnUserMarkedPaid,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ApplyAdminConfirm transitions a stuck transaction to payment_received and
// records the admin identity in the metadata audit trail.
func (d *Database) ApplyAdminConfirm(reference, adminID, note string) (*types.Transaction, bool, error) {
	var txn types.Transaction
	applied := false

	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("reference = ?", reference).First(&txn).Error; err != nil {
			return err
		}
		if txn.Status.IsTerminal() {
			return nil
		}
		if txn.Status != types.TxnPending && txn.Status != types.TxnUserMarkedPaid {
			return types.ErrInvalidState
		}

		metadata, err := mergeMetadata(txn.Metadata, map[string]interface{}{
			"admin_manual_confirmed": true,
			"admin_id":               adminID,
			"admin_note":             note,
			"admin_confirmed_at":     time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}

		result := tx.Model(&types.Transaction{}).
			Where("reference = ? AND status = ?", reference, txn.Status).
			Updates(map[string]interface{}{
				"status":     types.TxnPaymentReceived,
				"metadata":   metadata,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return types.ErrInvalidState
		}

		txn.Status = types.TxnPaymentReceived
		txn.Metadata = metadata
		applied = true
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, types.ErrNotFound
		}
		return nil, false, err
	}

	return &txn, applied, nil
}

// GetExpiredHeldEscrows returns held escrows past their deadline that have
// not yet been flagged.
func (d *Database) GetExpiredHeldEscrows(now time.Time) ([]types.Escrow, error) {
	var escrows []types.Escrow
	err := d.db.
		Where("status = ? AND expires_at < ? AND expired_flagged = ?", types.EscrowHeld, now, false).
		Find(&escrows).Error
	if err != nil {
		return nil, err
	}
	return escrows, nil
}

// FlagEscrowExpired marks an expired escrow for operator visibility without
// changing its status; expiry is enforced at confirmation time.
func (d *Database) FlagEscrowExpired(escrowID string) error {
	return d.db.Model(&types.Escrow{}).
		Where("escrow_id = ? AND status = ?", escrowID, types.EscrowHeld).
		Updates(map[string]interface{}{
			"expired_flagged": true,
			"updated_at":      time.Now(),
		}).Error
}

// appendEvent pushes a raw webhook event onto the metadata "events" array.
func appendEvent(metadata string, rawEvent json.RawMessage) (string, error) {
	meta, err := parseMetadata(metadata)
	if err != nil {
		return "", err
	}

	events, _ := meta["events"].([]interface{})
	var event interface{}
	if err := json.Unmarshal(rawEvent, &event); err != nil {
		return "", err
	}
	meta["events"] = append(events, event)

	out, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func mergeMetadata(metadata string, fields map[string]interface{}) (string, error) {
	meta, err := parseMetadata(metadata)
	if err != nil {
		return "", err
	}
	for k, v := range fields {
		meta[k] = v
	}

	out, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func parseMetadata(metadata string) (map[string]interface{}, error) {
	meta := make(map[string]interface{})
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &meta); err != nil {
			return nil, err
		}
	}
	return meta, nil
}
