package p2p

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/theceo1/trustbank-api/internal/auth"
	"github.com/theceo1/trustbank-api/internal/types"
	"github.com/theceo1/trustbank-api/pkg/response"
)

// GinHandlers contains HTTP handlers for the P2P trade endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for P2P endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateOrderHandler handles POST requests to create new P2P orders
// Requires a valid JWT token and idempotency key in headers
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		var req struct {
			Side     string          `json:"side" binding:"required,oneof=buy sell"`
			Currency string          `json:"currency" binding:"required"`
			Amount   decimal.Decimal `json:"amount" binding:"required"`
			Price    decimal.Decimal `json:"price" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if req.Amount.LessThanOrEqual(decimal.Zero) || req.Price.LessThanOrEqual(decimal.Zero) {
			response.BadRequest(c, "amount and price must be positive")
			return
		}

		order := types.Order{
			Side:     req.Side,
			Currency: req.Currency,
			Amount:   req.Amount,
			Price:    req.Price,
		}
		if err := h.service.CreateOrder(&order, c.GetString("userID"), idempotencyKey); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, order)
	}
}

// AcceptOrderHandler handles POST requests to accept an order into a trade
// URL parameter: order_id
func (h *GinHandlers) AcceptOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Amount decimal.Decimal `json:"amount" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.AcceptOrder(c.Param("order_id"), c.GetString("userID"), req.Amount)
		response.Handle(c, trade, err)
	}
}

// GetTradeHandler handles GET requests for a party's view of a trade
// URL parameter: trade_id
func (h *GinHandlers) GetTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, exists := c.Get("claims")
		if !exists {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		userID := auth.GetUserID(claims)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		trade, err := h.service.GetTradeForParty(c.Param("trade_id"), userID)
		response.Handle(c, trade, err)
	}
}

// ConfirmPaymentHandler handles the buyer's payment confirmation
// URL parameter: trade_id; body carries the payment proof
func (h *GinHandlers) ConfirmPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			PaymentProof string `json:"payment_proof" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.ConfirmPayment(c.Param("trade_id"), c.GetString("userID"), req.PaymentProof)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"trade_id": trade.TradeID, "status": trade.Status})
	}
}

// CompleteTradeHandler handles the seller's fund release
// URL parameter: trade_id. A non-seller caller gets 403.
func (h *GinHandlers) CompleteTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trade, err := h.service.CompleteTrade(c.Request.Context(), c.Param("trade_id"), c.GetString("userID"))
		if err != nil {
			if errors.Is(err, types.ErrUnauthorized) {
				response.Forbidden(c, "only the seller may complete the trade")
				return
			}
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"trade_id": trade.TradeID, "status": trade.Status})
	}
}

// OpenDisputeHandler handles dispute creation by either trade party
// URL parameter: trade_id; body carries reason and optional evidence
func (h *GinHandlers) OpenDisputeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Reason   string `json:"reason" binding:"required"`
			Evidence string `json:"evidence"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		dispute, err := h.service.OpenDispute(c.Param("trade_id"), c.GetString("userID"), req.Reason, req.Evidence)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{
			"dispute_id": dispute.DisputeID,
			"trade_id":   dispute.TradeID,
			"status":     types.TradeDisputed,
		})
	}
}
