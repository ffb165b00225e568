package payments

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/theceo1/trustbank-api/internal/exchange"
	"github.com/theceo1/trustbank-api/internal/types"
)

// Service reconciles asynchronous payment-provider deliveries against the
// transaction ledger. Webhook processing is acknowledge-first: the sender
// always gets a 200, and correctness rests on idempotent state application,
// not on request/response success.
type Service struct {
	db      *Database
	gateway exchange.Gateway
	// secrets maps a provider name to its pre-shared HMAC key
	secrets map[string]string
}

// NewService creates a new payment reconciliation service
func NewService(gormDB *gorm.DB, gateway exchange.Gateway, secrets map[string]string) *Service {
	return &Service{
		db:      NewDatabase(gormDB),
		gateway: gateway,
		secrets: secrets,
	}
}

// webhookEnvelope is the provider delivery wrapper. Only Data is signed.
type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// webhookData is the strict schema applied to the signed payload before it
// enters reconciliation. Anything that fails here is silently dropped.
type webhookData struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Wallet    string          `json:"wallet"`
}

// HandleWebhook applies one provider delivery. Every return path is a
// deliberate no-op or an applied transition; the HTTP layer acknowledges
// with 200 regardless, so internal failures are logged, never surfaced.
func (s *Service) HandleWebhook(ctx context.Context, provider string, body []byte, signature string) {
	logger := log.With().
		Str("service", "payments").
		Str("provider", provider).
		Logger()

	secret, ok := s.secrets[provider]
	if !ok {
		logger.Warn().Msg("webhook from unconfigured provider dropped")
		return
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Data) == 0 {
		logger.Debug().Msg("malformed webhook envelope dropped")
		return
	}

	if !VerifySignature(secret, envelope.Data, signature) {
		// Acknowledge without processing; do not leak verification details
		logger.Warn().Err(types.ErrSignatureInvalid).Msg("webhook delivery ignored")
		return
	}

	var data webhookData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		logger.Debug().Msg("webhook data failed schema validation")
		return
	}
	if data.Reference == "" || data.Status == "" {
		logger.Debug().Msg("webhook missing reference or status")
		return
	}

	newStatus := types.TransactionStatus(data.Status)
	if !newStatus.IsKnown() {
		logger.Debug().Str("status", data.Status).Msg("webhook carried unknown status")
		return
	}

	logger = logger.With().Str("reference", data.Reference).Str("status", data.Status).Logger()

	txn, err := s.db.GetTransactionByReference(data.Reference)
	if err != nil {
		logger.Error().Err(err).Msg("transaction lookup failed")
		return
	}
	if txn == nil {
		logger.Debug().Msg("unknown reference, delivery ignored")
		return
	}
	if txn.Status.IsTerminal() {
		logger.Debug().Str("current", string(txn.Status)).Msg("reference already terminal, delivery ignored")
		return
	}

	txn, applied, err := s.db.ApplyStatus(data.Reference, newStatus, envelope.Data)
	if err != nil {
		logger.Error().Err(err).Msg("failed to apply webhook status")
		return
	}

	if err := s.db.CreateWebhookEvent(&types.WebhookEvent{
		EventID:   "EVT_" + uuid.New().String(),
		Provider:  provider,
		Reference: data.Reference,
		Status:    data.Status,
		Payload:   string(envelope.Data),
		Applied:   applied,
		CreatedAt: time.Now(),
	}); err != nil {
		logger.Error().Err(err).Msg("failed to record webhook audit event")
	}

	if !applied {
		logger.Debug().Msg("lost race to concurrent delivery, no side effects")
		return
	}

	logger.Info().Msg("transaction status reconciled from webhook")

	// Crediting runs at most once per reference: only the delivery that won
	// the conditional update above gets here with a success status.
	if txn.Type == types.TransactionDeposit && newStatus == types.TxnSuccess {
		if err := s.gateway.CreditWallet(ctx, txn.UserID, data.Wallet, txn.Currency, txn.Amount); err != nil {
			logger.Error().Err(err).
				Str("user_id", txn.UserID).
				Msg("reconciliation_required: wallet credit failed after success status")
		}
	}
}

// CreateDeposit opens a pending deposit transaction and returns it. The
// generated reference is the idempotency key for every later delivery.
func (s *Service) CreateDeposit(userID, currency string, amount decimal.Decimal) (*types.Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, types.ErrInvalidState
	}

	now := time.Now()
	txn := &types.Transaction{
		TransactionID: "TXN_" + uuid.New().String(),
		UserID:        userID,
		Type:          types.TransactionDeposit,
		Amount:        amount,
		Currency:      currency,
		Status:        types.TxnPending,
		Reference:     "REF_" + uuid.New().String(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.db.CreateTransaction(txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// CreateSwap quotes and executes a currency swap through the exchange
// provider, then opens a processing transaction that the provider's webhook
// settles. Quotation and confirmation failures surface synchronously; the
// swap row is only created once the provider has accepted the quote.
func (s *Service) CreateSwap(ctx context.Context, userID, fromCurrency, toCurrency string, amount decimal.Decimal) (*types.Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, types.ErrInvalidState
	}

	quotation, err := s.gateway.CreateQuotation(ctx, fromCurrency, toCurrency, amount)
	if err != nil {
		return nil, err
	}
	if err := s.gateway.ConfirmQuotation(ctx, quotation.QuotationID); err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(map[string]interface{}{
		"quotation_id": quotation.QuotationID,
		"rate":         quotation.Rate.String(),
		"to_currency":  quotation.ToCurrency,
		"to_amount":    quotation.ToAmount.String(),
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	txn := &types.Transaction{
		TransactionID: "TXN_" + uuid.New().String(),
		UserID:        userID,
		Type:          types.TransactionSwap,
		Amount:        amount,
		Currency:      fromCurrency,
		Status:        types.TxnProcessing,
		Reference:     "REF_" + uuid.New().String(),
		Metadata:      string(metadata),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.db.CreateTransaction(txn); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "payments").
		Str("reference", txn.Reference).
		Str("quotation_id", quotation.QuotationID).
		Str("from", fromCurrency).
		Str("to", toCurrency).
		Msg("swap executed, awaiting settlement webhook")

	return txn, nil
}

// MarkPaid lets the payer self-report a pending transaction as paid. It
// never moves funds; it only gates the admin's manual review queue.
func (s *Service) MarkPaid(reference, actorID string) (*types.Transaction, error) {
	txn, err := s.db.GetTransactionByReference(reference)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, types.ErrNotFound
	}
	if txn.UserID != actorID {
		return nil, types.ErrUnauthorized
	}

	applied, err := s.db.MarkUserPaid(reference)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, types.ErrInvalidState
	}

	txn.Status = types.TxnUserMarkedPaid

	log.Info().
		Str("service", "payments").
		Str("reference", reference).
		Str("user_id", actorID).
		Msg("payer self-reported payment")

	return txn, nil
}

// AdminManualConfirm is the escape hatch for stuck payments when webhook
// delivery never arrives. It bypasses signature verification (the caller is
// an authenticated admin) but keeps the terminal-status idempotency rule,
// and always leaves an audit trail of who confirmed.
func (s *Service) AdminManualConfirm(reference, adminID, note string) (*types.Transaction, error) {
	txn, applied, err := s.db.ApplyAdminConfirm(reference, adminID, note)
	if err != nil {
		return nil, err
	}

	if !applied {
		// Already terminal: the confirmation is a no-op by design
		log.Info().
			Str("service", "payments").
			Str("reference", reference).
			Str("admin_id", adminID).
			Str("status", string(txn.Status)).
			Msg("manual confirm on terminal transaction, no-op")
		return txn, nil
	}

	log.Warn().
		Str("service", "payments").
		Str("reference", reference).
		Str("admin_id", adminID).
		Msg("transaction manually confirmed by admin")

	return txn, nil
}
