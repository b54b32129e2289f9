// Package wallet owns every balance mutation. All charges, refunds and
// credits go through here so the transaction log stays the source of
// truth for the balance.
package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/numanijaz119/Audio-to-text/internal/models"
	"github.com/numanijaz119/Audio-to-text/internal/pricing"
)

var (
	// ErrInsufficientFunds is an expected, user-facing outcome of Charge,
	// not a defect. Callers handle it as normal control flow.
	ErrInsufficientFunds = errors.New("insufficient balance")

	// ErrNothingToRefund means no matching debit exists for the job, or it
	// was already refunded.
	ErrNothingToRefund = errors.New("nothing to refund")

	// ErrDuplicatePayment means the gateway payment id was already
	// credited. Redelivered callbacks hit this path.
	ErrDuplicatePayment = errors.New("payment already credited")

	ErrWalletNotFound = errors.New("wallet not found")

	// ErrBusy means the compare-and-swap on the wallet row kept losing to
	// concurrent writers. Retryable by the caller.
	ErrBusy = errors.New("wallet busy, try again")
)

// casRetries bounds the optimistic-concurrency retry loop. Matches the
// deadlock retry budget the charge path has always had.
const casRetries = 3

type Service struct {
	DB            *gorm.DB
	RatePerMinute decimal.Decimal
	DemoMinutes   decimal.Decimal
}

func NewService(db *gorm.DB, ratePerMinute, demoMinutes decimal.Decimal) *Service {
	return &Service{DB: db, RatePerMinute: ratePerMinute, DemoMinutes: demoMinutes}
}

// CreateForUser initialises the wallet at signup with the demo-minute
// grant, recording the grant as the first ledger entry. Runs inside the
// caller's transaction so user + wallet are created atomically.
func (s *Service) CreateForUser(tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error) {
	w := models.Wallet{
		UserID:               userID,
		Balance:              decimal.Zero,
		DemoMinutesRemaining: s.DemoMinutes,
		TotalSpent:           decimal.Zero,
		TotalMinutesUsed:     decimal.Zero,
	}
	if err := tx.Create(&w).Error; err != nil {
		return nil, err
	}

	grant := models.Transaction{
		WalletID:      w.ID,
		Type:          models.TrxDemoCredit,
		Amount:        decimal.Zero,
		BalanceBefore: decimal.Zero,
		BalanceAfter:  decimal.Zero,
		DemoMinutes:   s.DemoMinutes,
		Description:   fmt.Sprintf("Demo grant of %s free minutes", s.DemoMinutes),
	}
	if err := tx.Create(&grant).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// Balance is the read-only view returned by GetBalance.
type Balance struct {
	Balance              decimal.Decimal `json:"balance"`
	DemoMinutesRemaining decimal.Decimal `json:"demo_minutes_remaining"`
}

func (s *Service) GetBalance(userID uuid.UUID) (Balance, error) {
	w, err := s.findWallet(s.DB, userID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Balance: w.Balance, DemoMinutesRemaining: w.DemoMinutesRemaining}, nil
}

// Statistics are the derived usage numbers shown on the wallet page.
type Statistics struct {
	TotalMinutesTranscribed decimal.Decimal `json:"total_minutes_transcribed"`
	TotalAmountSpent        decimal.Decimal `json:"total_amount_spent"`
	CurrentBalance          decimal.Decimal `json:"current_balance"`
	DemoMinutesRemaining    decimal.Decimal `json:"demo_minutes_remaining"`
}

func (s *Service) GetStatistics(userID uuid.UUID) (Statistics, error) {
	w, err := s.findWallet(s.DB, userID)
	if err != nil {
		return Statistics{}, err
	}
	return Statistics{
		TotalMinutesTranscribed: w.TotalMinutesUsed,
		TotalAmountSpent:        w.TotalSpent,
		CurrentBalance:          w.Balance,
		DemoMinutesRemaining:    w.DemoMinutesRemaining,
	}, nil
}

// EstimateCharge prices a duration against the wallet's current demo
// allowance without touching anything. Same math as Charge.
func (s *Service) EstimateCharge(userID uuid.UUID, durationMinutes decimal.Decimal) (pricing.Estimate, bool, error) {
	w, err := s.findWallet(s.DB, userID)
	if err != nil {
		return pricing.Estimate{}, false, err
	}
	est := pricing.EstimateCost(durationMinutes, w.DemoMinutesRemaining, s.RatePerMinute)
	return est, w.Balance.GreaterThanOrEqual(est.Cost), nil
}

// Charge deducts demo minutes first, then the remaining cost from the
// balance, and appends the debit ledger entry atomically. jobID is
// the idempotency key: repeating a charge for the same job returns the
// prior debit instead of charging twice.
func (s *Service) Charge(userID uuid.UUID, durationMinutes decimal.Decimal, jobID uuid.UUID) (*models.Transaction, decimal.Decimal, error) {
	var trx *models.Transaction

	for attempt := 0; attempt < casRetries; attempt++ {
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			w, err := s.findWallet(tx, userID)
			if err != nil {
				return err
			}

			var prior models.Transaction
			err = tx.Where("wallet_id = ? AND reference_id = ? AND type = ?", w.ID, jobID, models.TrxDebit).
				First(&prior).Error
			if err == nil {
				trx = &prior
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			est := pricing.EstimateCost(durationMinutes, w.DemoMinutesRemaining, s.RatePerMinute)
			if w.Balance.LessThan(est.Cost) {
				return ErrInsufficientFunds
			}

			balanceBefore := w.Balance
			demoBefore := w.DemoMinutesRemaining
			newBalance := w.Balance.Sub(est.Cost)
			newDemo := w.DemoMinutesRemaining.Sub(est.DemoMinutesApplied)
			if newBalance.IsNegative() || newDemo.IsNegative() {
				// Arithmetic invariant broken; a bug, never recovered from.
				return fmt.Errorf("ledger invariant violated: balance %s demo %s", newBalance, newDemo)
			}

			if err := s.casUpdate(tx, w, map[string]interface{}{
				"balance":                newBalance,
				"demo_minutes_remaining": newDemo,
				"total_spent":            w.TotalSpent.Add(est.Cost),
				"total_minutes_used":     w.TotalMinutesUsed.Add(est.BilledMinutes),
			}); err != nil {
				return err
			}

			entry := models.Transaction{
				WalletID:      w.ID,
				Type:          models.TrxDebit,
				Amount:        est.Cost,
				BalanceBefore: balanceBefore,
				BalanceAfter:  newBalance,
				DemoMinutes:   est.DemoMinutesApplied,
				MinutesBilled: est.BilledMinutes,
				ReferenceID:   &jobID,
				Description: fmt.Sprintf("Transcription charge for %s minutes (billed %s, demo %s -> %s)",
					durationMinutes.StringFixed(2), est.BilledMinutes, demoBefore.StringFixed(2), newDemo.StringFixed(2)),
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			trx = &entry
			return nil
		})

		if errors.Is(err, errConflict) {
			continue
		}
		if err != nil {
			return nil, decimal.Zero, err
		}
		return trx, trx.Amount, nil
	}
	return nil, decimal.Zero, ErrBusy
}

// Refund reverses the charge tied to jobID, restoring both the balance
// and the demo-minute level to their pre-charge values. At most one
// refund per job; the partial unique index backs the in-transaction check.
func (s *Service) Refund(userID uuid.UUID, jobID uuid.UUID) (*models.Transaction, error) {
	var trx *models.Transaction

	for attempt := 0; attempt < casRetries; attempt++ {
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			w, err := s.findWallet(tx, userID)
			if err != nil {
				return err
			}

			var debit models.Transaction
			err = tx.Where("wallet_id = ? AND reference_id = ? AND type = ?", w.ID, jobID, models.TrxDebit).
				First(&debit).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNothingToRefund
			}
			if err != nil {
				return err
			}

			var existing int64
			if err := tx.Model(&models.Transaction{}).
				Where("wallet_id = ? AND reference_id = ? AND type = ?", w.ID, jobID, models.TrxRefund).
				Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				return ErrNothingToRefund
			}

			balanceBefore := w.Balance
			newBalance := w.Balance.Add(debit.Amount)
			newDemo := w.DemoMinutesRemaining.Add(debit.DemoMinutes)

			if err := s.casUpdate(tx, w, map[string]interface{}{
				"balance":                newBalance,
				"demo_minutes_remaining": newDemo,
				"total_spent":            w.TotalSpent.Sub(debit.Amount),
				"total_minutes_used":     w.TotalMinutesUsed.Sub(debit.MinutesBilled),
			}); err != nil {
				return err
			}

			entry := models.Transaction{
				WalletID:      w.ID,
				Type:          models.TrxRefund,
				Amount:        debit.Amount,
				BalanceBefore: balanceBefore,
				BalanceAfter:  newBalance,
				DemoMinutes:   debit.DemoMinutes,
				MinutesBilled: debit.MinutesBilled,
				ReferenceID:   &jobID,
				Description:   "Refund for failed transcription",
			}
			if err := tx.Create(&entry).Error; err != nil {
				if isUniqueViolation(err) {
					return ErrNothingToRefund
				}
				return err
			}
			trx = &entry
			return nil
		})

		if errors.Is(err, errConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return trx, nil
	}
	return nil, ErrBusy
}

// Credit adds a verified gateway payment to the balance. paymentID is the
// idempotency key: a redelivered callback gets ErrDuplicatePayment and
// the ledger is untouched.
func (s *Service) Credit(userID uuid.UUID, amount decimal.Decimal, paymentID, gatewayOrderID string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive, got %s", amount)
	}

	var trx *models.Transaction

	for attempt := 0; attempt < casRetries; attempt++ {
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			var existing int64
			if err := tx.Model(&models.Transaction{}).
				Where("payment_id = ?", paymentID).
				Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				return ErrDuplicatePayment
			}

			w, err := s.findWallet(tx, userID)
			if err != nil {
				return err
			}

			balanceBefore := w.Balance
			newBalance := w.Balance.Add(amount)

			if err := s.casUpdate(tx, w, map[string]interface{}{
				"balance": newBalance,
			}); err != nil {
				return err
			}

			entry := models.Transaction{
				WalletID:       w.ID,
				Type:           models.TrxRecharge,
				Amount:         amount,
				BalanceBefore:  balanceBefore,
				BalanceAfter:   newBalance,
				Description:    "Wallet recharge via Razorpay",
				PaymentID:      &paymentID,
				GatewayOrderID: &gatewayOrderID,
			}
			if err := tx.Create(&entry).Error; err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicatePayment
				}
				return err
			}
			trx = &entry
			return nil
		})

		if errors.Is(err, errConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return trx, nil
	}
	return nil, ErrBusy
}

// Transactions lists the user's ledger entries, newest first.
func (s *Service) Transactions(userID uuid.UUID, limit int) ([]models.Transaction, error) {
	w, err := s.findWallet(s.DB, userID)
	if err != nil {
		return nil, err
	}
	q := s.DB.Where("wallet_id = ?", w.ID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var trxs []models.Transaction
	if err := q.Find(&trxs).Error; err != nil {
		return nil, err
	}
	return trxs, nil
}

// ReplayBalance reconstructs a balance by replaying ledger entries in
// order. Used by reconciliation sweeps and tests to audit the wallet.
func ReplayBalance(trxs []models.Transaction) decimal.Decimal {
	balance := decimal.Zero
	for _, t := range trxs {
		switch t.Type {
		case models.TrxRecharge, models.TrxRefund:
			balance = balance.Add(t.Amount)
		case models.TrxDebit:
			balance = balance.Sub(t.Amount)
		case models.TrxDemoCredit:
			// minutes only, no monetary effect
		}
	}
	return balance
}

var errConflict = errors.New("wallet version conflict")

// casUpdate applies the field updates only if nobody else has written the
// wallet row since we read it. Losing the race returns errConflict so the
// whole transaction can be retried with fresh state.
func (s *Service) casUpdate(tx *gorm.DB, w *models.Wallet, fields map[string]interface{}) error {
	fields["version"] = w.Version + 1
	res := tx.Model(&models.Wallet{}).
		Where("id = ? AND version = ?", w.ID, w.Version).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errConflict
	}
	return nil
}

func (s *Service) findWallet(tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	if err := tx.Where("user_id = ?", userID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
