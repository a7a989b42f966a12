package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailflux/mailflux/internal/enum"
)

// EmailEvent is one lifecycle record for a (message, recipient) pair. The rows
// are append-only except for the single queued row per pair, which the worker
// rewrites to sent or failed.
type EmailEvent struct {
	ID             string              `gorm:"column:id;type:varchar(64);primaryKey"`
	UserID         string              `gorm:"column:user_id;type:varchar(50);index;not null"`
	MessageID      string              `gorm:"column:message_id;type:varchar(255);index;not null"`
	EventType      enum.EmailEventType `gorm:"column:event_type;type:varchar(50);index;not null"`
	RecipientEmail string              `gorm:"column:recipient_email;type:varchar(255);index"`
	SendingDomain  string              `gorm:"column:sending_domain;type:varchar(255);index"`
	Subject        string              `gorm:"column:subject;type:varchar(1000)"`
	Metadata       JSONMap             `gorm:"column:metadata;type:jsonb"`
	IPAddress      string              `gorm:"column:ip_address;type:varchar(45)"`
	UserAgent      string              `gorm:"column:user_agent;type:varchar(500)"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;index;default:current_timestamp"`
}

func (EmailEvent) TableName() string {
	return "email_events"
}

func (e *EmailEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = NewEventID()
	}
	return nil
}
