package payments

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/theceo1/trustbank-api/pkg/response"
)

// GinHandlers contains HTTP handlers for payment endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for payment endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// WebhookHandler consumes signed provider deliveries. It always answers
// 200 "ok" as fast as possible, including on internal failure: providers
// retry aggressively on non-200 and idempotent application is what keeps
// retries harmless.
// URL parameter: provider; signature header: x-<provider>-signature
func (h *GinHandlers) WebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := c.Param("provider")
		signature := c.GetHeader("x-" + provider + "-signature")

		body, err := io.ReadAll(c.Request.Body)
		if err == nil {
			h.service.HandleWebhook(c.Request.Context(), provider, body, signature)
		}

		c.String(http.StatusOK, "ok")
	}
}

// CreateDepositHandler opens a pending deposit for the authenticated user
func (h *GinHandlers) CreateDepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Amount   decimal.Decimal `json:"amount" binding:"required"`
			Currency string          `json:"currency" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.CreateDeposit(c.GetString("userID"), req.Currency, req.Amount)
		response.Handle(c, txn, err)
	}
}

// CreateSwapHandler quotes and executes a swap for the authenticated user
func (h *GinHandlers) CreateSwapHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			FromCurrency string          `json:"from_currency" binding:"required"`
			ToCurrency   string          `json:"to_currency" binding:"required"`
			Amount       decimal.Decimal `json:"amount" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.CreateSwap(c.Request.Context(), c.GetString("userID"),
			req.FromCurrency, req.ToCurrency, req.Amount)
		response.Handle(c, txn, err)
	}
}

// MarkPaidHandler lets the payer flag a pending transaction as paid
func (h *GinHandlers) MarkPaidHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Reference string `json:"reference" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.MarkPaid(req.Reference, c.GetString("userID"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"reference": txn.Reference, "status": txn.Status})
	}
}

// AdminManualConfirmHandler is the internal-only stuck-payment escape hatch
func (h *GinHandlers) AdminManualConfirmHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Reference string `json:"reference" binding:"required"`
			Note      string `json:"note"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.AdminManualConfirm(req.Reference, c.GetString("userID"), req.Note)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"reference": txn.Reference, "status": txn.Status})
	}
}
