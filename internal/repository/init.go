package repository

import (
	"gorm.io/gorm"

	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/models"
)

type Repositories struct {
	UserRepository        interfaces.UserRepository
	DomainRepository      interfaces.DomainRepository
	APIKeyRepository      interfaces.APIKeyRepository
	BillingRepository     interfaces.BillingRepository
	TemplateRepository    interfaces.TemplateRepository
	EventRepository       interfaces.EventRepository
	TrackingRepository    interfaces.TrackingRepository
	SuppressionRepository interfaces.SuppressionRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		UserRepository:        NewUserRepository(db),
		DomainRepository:      NewDomainRepository(db),
		APIKeyRepository:      NewAPIKeyRepository(db),
		BillingRepository:     NewBillingRepository(db),
		TemplateRepository:    NewTemplateRepository(db),
		EventRepository:       NewEventRepository(db),
		TrackingRepository:    NewTrackingRepository(db),
		SuppressionRepository: NewSuppressionRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Domain{},
		&models.DomainAPIKey{},
		&models.UserBilling{},
		&models.EmailTemplate{},
		&models.EmailTemplateVariable{},
		&models.EmailEvent{},
		&models.EmailTrackingOpen{},
		&models.EmailTrackingLink{},
		&models.EmailSuppression{},
	)
}
