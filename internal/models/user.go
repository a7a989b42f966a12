package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a tenant account. Managed externally; the send pipeline only reads it.
type User struct {
	ID    string `gorm:"column:id;type:varchar(50);primaryKey"`
	Email string `gorm:"column:email;type:varchar(255);uniqueIndex;not null"`
	Name  string `gorm:"column:name;type:varchar(255)"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = NewID("user")
	}
	return nil
}

// Domain is a sending domain owned by a user. The core only consumes the
// txt_verified gate; DNS verification itself lives elsewhere.
type Domain struct {
	ID          string `gorm:"column:id;type:varchar(50);primaryKey"`
	UserID      string `gorm:"column:user_id;type:varchar(50);index;not null"`
	Name        string `gorm:"column:name;type:varchar(255);index;not null"`
	TxtVerified bool   `gorm:"column:txt_verified;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Domain) TableName() string {
	return "domains"
}

func (d *Domain) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = NewID("dom")
	}
	return nil
}

// DomainAPIKey authenticates API requests for one sending domain. Only the
// SHA-256 hash of the raw key is stored.
type DomainAPIKey struct {
	ID         string     `gorm:"column:id;type:varchar(50);primaryKey"`
	UserID     string     `gorm:"column:user_id;type:varchar(50);index;not null"`
	DomainID   string     `gorm:"column:domain_id;type:varchar(50);index;not null"`
	Name       string     `gorm:"column:name;type:varchar(255)"`
	KeyHash    string     `gorm:"column:key_hash;type:char(64);uniqueIndex;not null"`
	IsActive   bool       `gorm:"column:is_active;default:true"`
	LastUsedAt *time.Time `gorm:"column:last_used_at;type:timestamp"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (DomainAPIKey) TableName() string {
	return "domain_api_keys"
}

func (k *DomainAPIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = NewID("key")
	}
	return nil
}

// UserBilling carries the monthly quota. email_used is reserved optimistically
// at accept time and rolled back on terminal worker failure.
type UserBilling struct {
	ID         string `gorm:"column:id;type:varchar(50);primaryKey"`
	UserID     string `gorm:"column:user_id;type:varchar(50);index;not null"`
	EmailLimit int64  `gorm:"column:email_limit;not null;default:0"`
	EmailUsed  int64  `gorm:"column:email_used;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (UserBilling) TableName() string {
	return "user_billing"
}

func (b *UserBilling) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = NewID("bill")
	}
	return nil
}
