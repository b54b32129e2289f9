package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AudioFile struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`

	Filename string `gorm:"type:varchar(255);not null" json:"filename"`
	FilePath string `gorm:"type:varchar(500);not null" json:"-"`

	// Duration in minutes, as reported by ffprobe.
	Duration decimal.Decimal `gorm:"type:numeric(6,2);not null" json:"duration"`
	Size     int64           `gorm:"not null" json:"size"`
	Format   string          `gorm:"type:varchar(10);not null" json:"format"`

	UploadedAt time.Time `gorm:"autoCreateTime" json:"uploaded_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (a *AudioFile) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return
}
