package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/numanijaz119/Audio-to-text/internal/services/wallet"
)

type WalletHandler struct {
	Wallet *wallet.Service
}

func NewWalletHandler(w *wallet.Service) *WalletHandler {
	return &WalletHandler{Wallet: w}
}

// Details returns the current balance and remaining demo minutes.
func (h *WalletHandler) Details(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	bal, err := h.Wallet.GetBalance(uid)
	if err != nil {
		return walletError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    bal,
	})
}

func (h *WalletHandler) Statistics(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	stats, err := h.Wallet.GetStatistics(uid)
	if err != nil {
		return walletError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}

// Transactions lists the ledger, newest first.
func (h *WalletHandler) Transactions(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	trxs, err := h.Wallet.Transactions(uid, limit)
	if err != nil {
		return walletError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    trxs,
	})
}

func walletError(c *fiber.Ctx, err error) error {
	if err == wallet.ErrWalletNotFound {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Wallet not found",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": "Internal error",
	})
}
