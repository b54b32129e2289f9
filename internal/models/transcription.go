package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TranscriptionStatus string

const (
	StatusPending    TranscriptionStatus = "pending"
	StatusProcessing TranscriptionStatus = "processing"
	StatusCompleted  TranscriptionStatus = "completed"
	StatusFailed     TranscriptionStatus = "failed"
)

type Language string

const (
	LanguageAuto    Language = "auto"
	LanguageEnglish Language = "english"
	LanguageHindi   Language = "hindi"
)

// Transcription is one unit of paid work. The row only exists if the
// wallet charge for it succeeded; cost is frozen at charge time and never
// recomputed. completed/failed are terminal.
type Transcription struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	AudioFileID uuid.UUID `gorm:"type:uuid;index;not null" json:"audio_file_id"`

	Language Language            `gorm:"type:varchar(20);not null" json:"language"`
	Status   TranscriptionStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	Text         string          `gorm:"type:text" json:"text,omitempty"`
	Duration     decimal.Decimal `gorm:"type:numeric(6,2);not null" json:"duration"`
	Cost         decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"cost"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	AudioFile *AudioFile `gorm:"foreignKey:AudioFileID" json:"audio_file,omitempty"`
	User      *User      `gorm:"foreignKey:UserID" json:"-"`
}

func (t *Transcription) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return
}

// Terminal reports whether the job may no longer transition.
func (t *Transcription) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}
