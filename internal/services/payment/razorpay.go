package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// RazorpayClient talks to the Razorpay Orders API and verifies the
// signatures it attaches to checkout callbacks.
type RazorpayClient struct {
	Client        *http.Client
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
}

func NewRazorpayClient() *RazorpayClient {
	webhookSecret := os.Getenv("RAZORPAY_WEBHOOK_SECRET")
	if webhookSecret == "" {
		webhookSecret = os.Getenv("RAZORPAY_KEY_SECRET")
	}
	return &RazorpayClient{
		Client:        &http.Client{Timeout: 15 * time.Second},
		KeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		KeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		WebhookSecret: webhookSecret,
		BaseURL:       "https://api.razorpay.com/v1",
	}
}

type orderRequest struct {
	Amount   int64             `json:"amount"` // paise
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type OrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder registers an order with the gateway. Amount is in rupees;
// Razorpay wants paise.
func (c *RazorpayClient) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string, notes map[string]string) (*OrderResponse, error) {
	reqBody := orderRequest{
		Amount:   amount.Mul(decimal.NewFromInt(100)).IntPart(),
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	}

	jsonBody, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/orders", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 300 {
		var apiErr errorResponse
		if err := json.Unmarshal(bodyBytes, &apiErr); err == nil && apiErr.Error.Description != "" {
			return nil, fmt.Errorf("%w: %s (%s)", ErrGatewayUnavailable, apiErr.Error.Description, apiErr.Error.Code)
		}
		return nil, fmt.Errorf("%w: http %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var order OrderResponse
	if err := json.Unmarshal(bodyBytes, &order); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %v", err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: empty order id", ErrGatewayUnavailable)
	}
	return &order, nil
}

// VerifyPaymentSignature checks the checkout callback signature:
// HMAC-SHA256("orderID|paymentID", key_secret), constant-time compare.
func (c *RazorpayClient) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	expected := c.sign(orderID + "|" + paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks a webhook delivery, signed over the raw
// request body with the webhook secret.
func (c *RazorpayClient) VerifyWebhookSignature(payload []byte, signature string) bool {
	h := hmac.New(sha256.New, []byte(c.WebhookSecret))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *RazorpayClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.KeySecret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
