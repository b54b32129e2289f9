package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/numanijaz119/Audio-to-text/internal/services/payment"
	"github.com/numanijaz119/Audio-to-text/internal/services/wallet"
)

type PaymentHandler struct {
	Payments *payment.Service
}

func NewPaymentHandler(p *payment.Service) *PaymentHandler {
	return &PaymentHandler{Payments: p}
}

type createOrderRequest struct {
	Amount string `json:"amount"`
}

// CreateOrder opens a recharge order at the gateway. Nothing is credited
// until the payment callback verifies.
func (h *PaymentHandler) CreateOrder(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid amount",
		})
	}

	order, err := h.Payments.CreateOrder(c.UserContext(), uid, amount)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidAmount):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Amount below the minimum recharge",
			})
		case errors.Is(err, payment.ErrGatewayUnavailable):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"success": false,
				"message": "Payment gateway unavailable, please try again",
			})
		default:
			log.Println("Error creating payment order:", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Internal error",
			})
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"order_id": order.OrderID,
			"amount":   order.Amount,
			"currency": order.Currency,
		},
	})
}

type verifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
	Amount    string `json:"amount"`
}

// VerifyPayment checks the gateway signature and credits the wallet once.
func (h *PaymentHandler) VerifyPayment(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	var req verifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Missing payment fields",
		})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid amount",
		})
	}

	trx, err := h.Payments.VerifyAndCredit(uid, req.OrderID, req.PaymentID, req.Signature, amount)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrSignatureMismatch):
			log.Printf("Signature mismatch on order %s from %s", req.OrderID, c.IP())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Payment verification failed",
			})
		case errors.Is(err, payment.ErrOrderNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "Order not found",
			})
		case errors.Is(err, payment.ErrInvalidAmount):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Amount does not match the order",
			})
		case errors.Is(err, wallet.ErrDuplicatePayment):
			// already credited, report success so client retries settle
			return c.JSON(fiber.Map{
				"success": true,
				"message": "Payment already processed",
			})
		default:
			log.Println("Error verifying payment:", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Internal error",
			})
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Wallet recharged",
		"data":    trx,
	})
}

// Webhook receives gateway event deliveries. Always answers 200 on
// verified events so the gateway stops redelivering.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	signature := c.Get("X-Razorpay-Signature")
	if signature == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	if err := h.Payments.HandleWebhook(c.Body(), signature); err != nil {
		switch {
		case errors.Is(err, payment.ErrSignatureMismatch):
			log.Printf("Webhook signature mismatch from %s", c.IP())
			return c.SendStatus(fiber.StatusBadRequest)
		case errors.Is(err, payment.ErrOrderNotFound):
			// unknown order, nothing to reconcile
			return c.SendStatus(fiber.StatusOK)
		default:
			log.Println("Error handling payment webhook:", err)
			return c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	return c.SendStatus(fiber.StatusOK)
}
