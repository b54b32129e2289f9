package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ContactSubject string

const (
	SubjectGeneral   ContactSubject = "general"
	SubjectTechnical ContactSubject = "technical"
	SubjectBilling   ContactSubject = "billing"
	SubjectFeature   ContactSubject = "feature"
	SubjectBug       ContactSubject = "bug"
	SubjectOther     ContactSubject = "other"
)

type ContactMessage struct {
	ID      uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name    string         `gorm:"type:varchar(255);not null" json:"name"`
	Email   string         `gorm:"type:varchar(255);not null;index" json:"email"`
	Subject ContactSubject `gorm:"type:varchar(20);not null" json:"subject"`
	Message string         `gorm:"type:text;not null" json:"message"`
	Status  string         `gorm:"type:varchar(20);not null;default:'new'" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *ContactMessage) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return
}
