package models

import (
	"time"

	"gorm.io/gorm"
)

// EmailTemplate is a stored message body resolved by id or slug at send time.
type EmailTemplate struct {
	ID          string `gorm:"column:id;type:varchar(50);primaryKey"`
	UserID      string `gorm:"column:user_id;type:varchar(50);uniqueIndex:idx_templates_user_slug;not null"`
	Slug        string `gorm:"column:slug;type:varchar(255);uniqueIndex:idx_templates_user_slug;not null"`
	Subject     string `gorm:"column:subject;type:varchar(1000);not null"`
	HTMLContent string `gorm:"column:html_content;type:text"`
	IsActive    bool   `gorm:"column:is_active;default:true"`

	Variables []EmailTemplateVariable `gorm:"foreignKey:TemplateID"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (EmailTemplate) TableName() string {
	return "email_templates"
}

func (t *EmailTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = NewID("tpl")
	}
	return nil
}

// EmailTemplateVariable declares a placeholder with an optional default value,
// applied after caller-supplied variables.
type EmailTemplateVariable struct {
	ID           string `gorm:"column:id;type:varchar(50);primaryKey"`
	TemplateID   string `gorm:"column:template_id;type:varchar(50);index;not null"`
	Name         string `gorm:"column:name;type:varchar(255);not null"`
	DefaultValue string `gorm:"column:default_value;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
}

func (EmailTemplateVariable) TableName() string {
	return "email_template_variables"
}

func (v *EmailTemplateVariable) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = NewID("tvar")
	}
	return nil
}
