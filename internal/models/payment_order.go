package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentOrderStatus string

const (
	OrderStatusCreated  PaymentOrderStatus = "created"
	OrderStatusVerified PaymentOrderStatus = "verified"
	OrderStatusFailed   PaymentOrderStatus = "failed"
)

// PaymentOrder tracks one requested recharge from creation at the gateway
// until its signed callback is reconciled. An abandoned order stays in
// "created" forever with no ledger effect.
type PaymentOrder struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`

	OrderID  string             `gorm:"type:varchar(255);uniqueIndex;not null" json:"order_id"`
	Amount   decimal.Decimal    `gorm:"type:numeric(10,2);not null" json:"amount"`
	Currency string             `gorm:"type:varchar(10);not null;default:'INR'" json:"currency"`
	Status   PaymentOrderStatus `gorm:"type:varchar(20);not null;default:'created'" json:"status"`

	// Metadata we attached to the gateway order (user id, email).
	Notes datatypes.JSON `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (p *PaymentOrder) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return
}
