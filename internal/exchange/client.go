package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/theceo1/trustbank-api/internal/types"
)

// Client implements Gateway against the exchange provider's HTTP API.
type Client struct {
	http *resty.Client
}

// NewClient creates a gateway client for the given provider base URL and key.
func NewClient(baseURL, apiKey string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &Client{http: httpClient}
}

type transferRequest struct {
	EscrowID string `json:"escrow_id,omitempty"`
	UserID   string `json:"user_id"`
	Wallet   string `json:"wallet,omitempty"`
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

type providerError struct {
	Message string `json:"message"`
}

// ReleaseFunds transfers escrowed funds to the seller's custodial account.
func (c *Client) ReleaseFunds(ctx context.Context, escrowID, sellerID, currency string, amount decimal.Decimal) error {
	req := transferRequest{
		EscrowID: escrowID,
		UserID:   sellerID,
		Currency: currency,
		Amount:   amount.String(),
	}
	return c.post(ctx, "/v1/custody/transfers", req)
}

// CreditWallet credits a user's wallet after a confirmed deposit.
func (c *Client) CreditWallet(ctx context.Context, userID, walletKind, currency string, amount decimal.Decimal) error {
	req := transferRequest{
		UserID:   userID,
		Wallet:   walletKind,
		Currency: currency,
		Amount:   amount.String(),
	}
	return c.post(ctx, "/v1/wallets/credit", req)
}

// CreateQuotation requests a swap quotation from the provider.
func (c *Client) CreateQuotation(ctx context.Context, fromCurrency, toCurrency string, amount decimal.Decimal) (*Quotation, error) {
	var quotation Quotation
	var provErr providerError

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"from_currency": fromCurrency,
			"to_currency":   toCurrency,
			"from_amount":   amount.String(),
		}).
		SetResult(&quotation).
		SetError(&provErr).
		Post("/v1/quotations")

	if err != nil {
		return nil, fmt.Errorf("%w: create quotation: %v", types.ErrUpstreamFailure, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: create quotation: %s (%d)", types.ErrUpstreamFailure, provErr.Message, resp.StatusCode())
	}

	return &quotation, nil
}

// ConfirmQuotation executes a previously created quotation.
func (c *Client) ConfirmQuotation(ctx context.Context, quotationID string) error {
	return c.post(ctx, "/v1/quotations/"+quotationID+"/confirm", nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	var provErr providerError

	req := c.http.R().SetContext(ctx).SetError(&provErr)
	if body != nil {
		req = req.SetBody(body)
	}

	resp, err := req.Post(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrUpstreamFailure, path, err)
	}
	if resp.IsError() {
		log.Error().
			Str("path", path).
			Int("status", resp.StatusCode()).
			Str("message", provErr.Message).
			Msg("exchange provider rejected request")
		return fmt.Errorf("%w: %s: %s (%d)", types.ErrUpstreamFailure, path, provErr.Message, resp.StatusCode())
	}

	return nil
}
