package migrations

import (
	"github.com/theceo1/trustbank-api/internal/types"
	"gorm.io/gorm"
)

// AddWebhookEvents creates the webhook audit table. Kept as an explicit
// migration so the audit schema can evolve independently of the ledger.
func AddWebhookEvents(db *gorm.DB) error {
	return db.AutoMigrate(&types.WebhookEvent{})
}
