// Package payment creates gateway recharge orders and reconciles their
// signed callbacks into wallet credits, exactly once per payment.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/numanijaz119/Audio-to-text/internal/models"
	"github.com/numanijaz119/Audio-to-text/internal/services/wallet"
)

var (
	// ErrInvalidAmount covers recharges below the minimum and callbacks
	// whose amount disagrees with the stored order.
	ErrInvalidAmount = errors.New("invalid recharge amount")

	// ErrSignatureMismatch means the callback signature did not match the
	// one recomputed from the shared secret. Possible forgery; logged,
	// never silently ignored.
	ErrSignatureMismatch = errors.New("payment signature mismatch")

	ErrOrderNotFound = errors.New("payment order not found")

	// ErrGatewayUnavailable is retryable: the gateway could not be reached
	// and no ledger or order state was created.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

type Service struct {
	DB          *gorm.DB
	Gateway     *RazorpayClient
	Wallet      *wallet.Service
	MinRecharge decimal.Decimal
	Currency    string
}

func NewService(db *gorm.DB, gateway *RazorpayClient, walletSvc *wallet.Service, minRecharge decimal.Decimal) *Service {
	return &Service{
		DB:          db,
		Gateway:     gateway,
		Wallet:      walletSvc,
		MinRecharge: minRecharge,
		Currency:    "INR",
	}
}

// CreateOrder asks the gateway for an order id and persists the order in
// "created". No ledger effect: the wallet is only touched by a verified
// callback.
func (s *Service) CreateOrder(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.PaymentOrder, error) {
	if amount.LessThan(s.MinRecharge) {
		return nil, fmt.Errorf("%w: minimum is %s", ErrInvalidAmount, s.MinRecharge)
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}

	notes := map[string]string{
		"user_id":    userID.String(),
		"user_email": user.Email,
	}
	resp, err := s.Gateway.CreateOrder(ctx, amount, s.Currency, "rcpt_"+userID.String(), notes)
	if err != nil {
		return nil, err
	}

	notesJSON, _ := json.Marshal(notes)
	order := models.PaymentOrder{
		UserID:   userID,
		OrderID:  resp.ID,
		Amount:   amount,
		Currency: s.Currency,
		Status:   models.OrderStatusCreated,
		Notes:    datatypes.JSON(notesJSON),
	}
	if err := s.DB.Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// VerifyAndCredit reconciles one checkout callback. The signature is
// recomputed from orderID+paymentID and compared in constant time; on a
// match the wallet is credited with paymentID as the idempotency key, so
// a redelivered callback can never credit twice. The credited amount
// comes from the stored order, never from the caller.
func (s *Service) VerifyAndCredit(userID uuid.UUID, orderID, paymentID, signature string, amount decimal.Decimal) (*models.Transaction, error) {
	var order models.PaymentOrder
	err := s.DB.Where("order_id = ? AND user_id = ?", orderID, userID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if !s.Gateway.VerifyPaymentSignature(orderID, paymentID, signature) {
		s.DB.Model(&order).Update("status", models.OrderStatusFailed)
		return nil, ErrSignatureMismatch
	}

	if !amount.Equal(order.Amount) {
		return nil, fmt.Errorf("%w: callback amount %s, order amount %s", ErrInvalidAmount, amount, order.Amount)
	}

	trx, err := s.Wallet.Credit(userID, order.Amount, paymentID, orderID)
	if errors.Is(err, wallet.ErrDuplicatePayment) {
		// The credit landed on an earlier delivery whose status write may
		// have been lost; settle the order before reporting the duplicate.
		if uerr := s.markVerified(&order); uerr != nil {
			return nil, uerr
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if err := s.markVerified(&order); err != nil {
		return nil, err
	}
	return trx, nil
}

func (s *Service) markVerified(order *models.PaymentOrder) error {
	if order.Status == models.OrderStatusVerified {
		return nil
	}
	return s.DB.Model(order).Update("status", models.OrderStatusVerified).Error
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Amount  int64  `json:"amount"` // paise
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook reconciles a gateway webhook delivery. It is the backstop
// for checkouts whose browser callback never arrived. Credits use the
// same payment-id idempotency key as VerifyAndCredit, so a payment seen
// on both paths still credits once.
func (s *Service) HandleWebhook(payload []byte, signature string) error {
	if !s.Gateway.VerifyWebhookSignature(payload, signature) {
		return ErrSignatureMismatch
	}

	var ev webhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("malformed webhook payload: %w", err)
	}
	if ev.Event != "payment.captured" {
		return nil
	}

	entity := ev.Payload.Payment.Entity
	var order models.PaymentOrder
	err := s.DB.Where("order_id = ?", entity.OrderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}

	amount := decimal.NewFromInt(entity.Amount).Div(decimal.NewFromInt(100))
	if !amount.Equal(order.Amount) {
		return fmt.Errorf("%w: webhook amount %s, order amount %s", ErrInvalidAmount, amount, order.Amount)
	}

	_, err = s.Wallet.Credit(order.UserID, order.Amount, entity.ID, order.OrderID)
	if errors.Is(err, wallet.ErrDuplicatePayment) {
		return s.markVerified(&order)
	}
	if err != nil {
		return err
	}

	return s.markVerified(&order)
}

// IsVerified reports whether an order has been reconciled. Out-of-band
// sweeps use this to find orders stuck in "created".
func (s *Service) IsVerified(orderID string) (bool, error) {
	var order models.PaymentOrder
	err := s.DB.Where("order_id = ?", orderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, ErrOrderNotFound
	}
	if err != nil {
		return false, err
	}
	return order.Status == models.OrderStatusVerified, nil
}
