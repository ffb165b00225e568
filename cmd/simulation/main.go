package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/theceo1/trustbank-api/internal/payments"
)

const serverAddress = "http://localhost:8080"

// Demo credentials registered by the server outside production
var (
	seller = credentials{apiKey: "alice-api-key", apiSecret: "alice-api-secret"}
	buyer  = credentials{apiKey: "bob-api-key", apiSecret: "bob-api-secret"}
	admin  = credentials{apiKey: "admin-api-key", apiSecret: "admin-api-secret"}
)

type credentials struct {
	apiKey    string
	apiSecret string
}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// apiClient handles HTTP communication with the escrow API
type apiClient struct {
	httpClient *http.Client
	token      string
}

func newAPIClient() *apiClient {
	return &apiClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *apiClient) do(method, path string, body interface{}, headers map[string]string) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, serverAddress+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Webhook endpoint answers plain "ok", not the JSON envelope
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
		}
		return nil, nil
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	if !envelope.Success {
		message := "unknown error"
		if envelope.Error != nil {
			message = envelope.Error.Message
		}
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, message)
	}

	return envelope.Data, nil
}

func (c *apiClient) authenticate(creds credentials) error {
	data, err := c.do("POST", "/api/v1/auth/token", map[string]string{
		"api_key":    creds.apiKey,
		"api_secret": creds.apiSecret,
	}, nil)
	if err != nil {
		return err
	}

	var token struct {
		Token string `json:"jwt_token"`
	}
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}
	c.token = token.Token
	return nil
}

func main() {
	log.Info().Msg("starting P2P escrow lifecycle simulation")

	sellerClient := newAPIClient()
	buyerClient := newAPIClient()
	adminClient := newAPIClient()

	for name, pair := range map[string]struct {
		client *apiClient
		creds  credentials
	}{
		"seller": {sellerClient, seller},
		"buyer":  {buyerClient, buyer},
		"admin":  {adminClient, admin},
	} {
		if err := pair.client.authenticate(pair.creds); err != nil {
			log.Fatal().Err(err).Str("actor", name).Msg("authentication failed")
		}
	}

	// Seller advertises a sell order
	orderData, err := sellerClient.do("POST", "/api/v1/p2p/orders", map[string]interface{}{
		"side":     "sell",
		"currency": "USDT",
		"amount":   "250",
		"price":    "1590.50",
	}, map[string]string{"Idempotency-Key": uuid.New().String()})
	if err != nil {
		log.Fatal().Err(err).Msg("order creation failed")
	}
	var order struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(orderData, &order); err != nil {
		log.Fatal().Err(err).Msg("could not decode order")
	}
	log.Info().Str("order_id", order.OrderID).Msg("sell order created")

	// Buyer accepts into a trade; escrow is held
	tradeData, err := buyerClient.do("POST", "/api/v1/p2p/orders/"+order.OrderID+"/accept",
		map[string]interface{}{"amount": "100"}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("order acceptance failed")
	}
	var trade struct {
		TradeID  string `json:"trade_id"`
		EscrowID string `json:"escrow_id"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(tradeData, &trade); err != nil {
		log.Fatal().Err(err).Msg("could not decode trade")
	}
	log.Info().
		Str("trade_id", trade.TradeID).
		Str("escrow_id", trade.EscrowID).
		Str("status", trade.Status).
		Msg("trade opened")

	// Buyer confirms fiat payment with proof
	if _, err := buyerClient.do("POST", "/api/v1/p2p/trades/"+trade.TradeID+"/confirm",
		map[string]string{"payment_proof": "bank-transfer-ref-83321"}, nil); err != nil {
		log.Fatal().Err(err).Msg("payment confirmation failed")
	}
	log.Info().Str("trade_id", trade.TradeID).Msg("buyer confirmed payment")

	// Wrong-party release attempt should be rejected
	if _, err := buyerClient.do("POST", "/api/v1/p2p/trades/"+trade.TradeID+"/complete", nil, nil); err != nil {
		log.Info().Err(err).Msg("buyer release correctly rejected")
	} else {
		log.Fatal().Msg("buyer was allowed to complete the trade")
	}

	// Seller releases escrowed funds
	if _, err := sellerClient.do("POST", "/api/v1/p2p/trades/"+trade.TradeID+"/complete", nil, nil); err != nil {
		log.Fatal().Err(err).Msg("trade completion failed")
	}
	log.Info().Str("trade_id", trade.TradeID).Msg("trade completed, funds released")

	// Deposit + webhook reconciliation round trip
	depositData, err := buyerClient.do("POST", "/api/v1/payments/deposits", map[string]interface{}{
		"amount":   "5000",
		"currency": "NGN",
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("deposit creation failed")
	}
	var deposit struct {
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(depositData, &deposit); err != nil {
		log.Fatal().Err(err).Msg("could not decode deposit")
	}
	log.Info().Str("reference", deposit.Reference).Msg("deposit opened")

	// Payer self-reports, then the provider webhook settles the deposit
	if _, err := buyerClient.do("POST", "/api/v1/payments/mark-paid",
		map[string]string{"reference": deposit.Reference}, nil); err != nil {
		log.Fatal().Err(err).Msg("mark-paid failed")
	}

	webhookSecret := os.Getenv("WEBHOOK_SECRET_KORAPAY")
	if webhookSecret == "" {
		webhookSecret = "dev-korapay-secret"
	}
	payload := []byte(fmt.Sprintf(
		`{"reference":%q,"status":"success","amount":"5000","currency":"NGN","wallet":"fiat"}`,
		deposit.Reference))
	webhookBody := map[string]json.RawMessage{
		"event": json.RawMessage(`"charge.success"`),
		"data":  payload,
	}
	signature := payments.Sign(webhookSecret, payload)

	// Deliver twice: the second must be an idempotent no-op
	for attempt := 1; attempt <= 2; attempt++ {
		if _, err := newAPIClient().do("POST", "/api/v1/webhooks/korapay", webhookBody,
			map[string]string{"x-korapay-signature": signature}); err != nil {
			log.Fatal().Err(err).Int("attempt", attempt).Msg("webhook delivery failed")
		}
		log.Info().Int("attempt", attempt).Msg("webhook acknowledged")
	}

	// Admin manual confirm on a settled reference must be a no-op too
	if _, err := adminClient.do("POST", "/api/v1/internal/payments/manual-confirm",
		map[string]string{"reference": deposit.Reference, "note": "post-settlement check"}, nil); err != nil {
		log.Fatal().Err(err).Msg("admin manual confirm failed")
	}
	log.Info().Msg("admin manual confirm acknowledged as no-op")

	log.Info().Msg("simulation completed successfully")
}
