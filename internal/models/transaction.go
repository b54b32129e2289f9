package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TrxRecharge   TransactionType = "recharge"
	TrxDebit      TransactionType = "debit"
	TrxDemoCredit TransactionType = "demo_credit"
	TrxRefund     TransactionType = "refund"
)

// Transaction is one immutable ledger entry. Rows are only ever inserted;
// the wallet balance must always be reconstructible by replaying them in
// order from the initial demo grant.
type Transaction struct {
	ID       uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	WalletID uuid.UUID       `gorm:"type:uuid;index;not null" json:"wallet_id"`
	Type     TransactionType `gorm:"type:varchar(20);not null" json:"type"`

	Amount        decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"balance_after"`

	// Demo minutes moved by this entry: granted by a demo_credit, consumed
	// by a debit, restored by a refund. Zero for recharges. Stored so a
	// refund restores the allowance exactly.
	DemoMinutes decimal.Decimal `gorm:"type:numeric(6,2);not null;default:0" json:"demo_minutes"`

	// Whole minutes billed by a debit (duration rounded up). Refunds carry
	// the same value back so usage totals stay honest.
	MinutesBilled decimal.Decimal `gorm:"type:numeric(6,2);not null;default:0" json:"minutes_billed"`

	Description string `gorm:"type:text" json:"description"`

	// Gateway payment id; unique when present so a redelivered callback
	// can never credit twice.
	PaymentID      *string `gorm:"type:varchar(255);uniqueIndex" json:"payment_id,omitempty"`
	GatewayOrderID *string `gorm:"type:varchar(255);index" json:"gateway_order_id,omitempty"`

	// Job id for debits and refunds. The partial unique index enforces at
	// most one refund per job.
	ReferenceID *uuid.UUID `gorm:"type:uuid;index;index:idx_refund_per_job,unique,where:type = 'refund'" json:"reference_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	Wallet *Wallet `gorm:"foreignKey:WalletID" json:"-"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return
}
