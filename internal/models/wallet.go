package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet holds the prepaid balance and the free demo-minute allowance for
// one user. Balance and minutes are only ever mutated through the wallet
// service; every mutation appends a Transaction. Wallets are soft-deleted
// so the ledger stays auditable after a user is removed.
type Wallet struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	Balance              decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"balance"`
	DemoMinutesRemaining decimal.Decimal `gorm:"type:numeric(6,2);not null;default:0" json:"demo_minutes_remaining"`
	TotalSpent           decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"total_spent"`
	TotalMinutesUsed     decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"total_minutes_used"`

	// Version backs the compare-and-swap update; bumped on every write.
	Version int64 `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) (err error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return
}
