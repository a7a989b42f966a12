package models

import (
	"time"
)

// EmailTrackingOpen backs the 1x1 pixel. Created at send; the first GET flips
// opened_at, every GET increments open_count.
type EmailTrackingOpen struct {
	ID             string     `gorm:"column:id;type:varchar(64);primaryKey"`
	UserID         string     `gorm:"column:user_id;type:varchar(50);index;not null"`
	MessageID      string     `gorm:"column:message_id;type:varchar(255);index;not null"`
	RecipientEmail string     `gorm:"column:recipient_email;type:varchar(255)"`
	SendingDomain  string     `gorm:"column:sending_domain;type:varchar(255)"`
	OpenedAt       *time.Time `gorm:"column:opened_at;type:timestamp"`
	OpenCount      int64      `gorm:"column:open_count;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
}

func (EmailTrackingOpen) TableName() string {
	return "email_tracking_opens"
}

// EmailTrackingLink backs the click redirect. One row per distinct original
// URL within a message.
type EmailTrackingLink struct {
	ID             string     `gorm:"column:id;type:varchar(64);primaryKey"`
	UserID         string     `gorm:"column:user_id;type:varchar(50);index;not null"`
	MessageID      string     `gorm:"column:message_id;type:varchar(255);index;not null"`
	RecipientEmail string     `gorm:"column:recipient_email;type:varchar(255)"`
	SendingDomain  string     `gorm:"column:sending_domain;type:varchar(255)"`
	OriginalURL    string     `gorm:"column:original_url;type:text;not null"`
	ClickedAt      *time.Time `gorm:"column:clicked_at;type:timestamp"`
	ClickCount     int64      `gorm:"column:click_count;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
}

func (EmailTrackingLink) TableName() string {
	return "email_tracking_links"
}
