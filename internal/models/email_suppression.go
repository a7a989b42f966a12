package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailflux/mailflux/internal/enum"
)

// EmailSuppression blocks future sends to an address. One row per
// (user, email); domain_id nil means the suppression is global for the user.
type EmailSuppression struct {
	ID            string                 `gorm:"column:id;type:varchar(64);primaryKey"`
	UserID        string                 `gorm:"column:user_id;type:varchar(50);uniqueIndex:idx_suppressions_user_email;not null"`
	DomainID      *string                `gorm:"column:domain_id;type:varchar(50);index"`
	Email         string                 `gorm:"column:email;type:varchar(255);uniqueIndex:idx_suppressions_user_email;not null"`
	Reason        enum.SuppressionReason `gorm:"column:reason;type:varchar(50);index;not null"`
	SourceEventID string                 `gorm:"column:source_event_id;type:varchar(64)"`
	Metadata      JSONMap                `gorm:"column:metadata;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (EmailSuppression) TableName() string {
	return "email_suppressions"
}

func (s *EmailSuppression) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = NewID("sup")
	}
	return nil
}
