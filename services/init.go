package services

import (
	"github.com/mailflux/mailflux/config"
	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/logger"
	"github.com/mailflux/mailflux/internal/queue"
	"github.com/mailflux/mailflux/internal/repository"
	"github.com/mailflux/mailflux/services/auth"
	"github.com/mailflux/mailflux/services/events"
	"github.com/mailflux/mailflux/services/send"
	"github.com/mailflux/mailflux/services/smtp"
	"github.com/mailflux/mailflux/services/suppression"
	"github.com/mailflux/mailflux/services/template"
	"github.com/mailflux/mailflux/services/tracking"
)

type Services struct {
	AuthService        interfaces.AuthService
	TemplateService    interfaces.TemplateService
	SuppressionService interfaces.SuppressionService
	TrackingService    interfaces.TrackingService
	SendService        interfaces.SendService
	EventService       interfaces.EventService
	RelayService       interfaces.RelayService
	EventsPublisher    interfaces.EventsPublisher
	JobQueue           queue.JobQueue
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	jobQueue, err := queue.NewRedisQueue(cfg.AppConfig.RedisURL, log)
	if err != nil {
		return nil, err
	}

	// fan-out is optional, the pipeline runs without a broker
	var publisher interfaces.EventsPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		publisher, err = events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log)
		if err != nil {
			return nil, err
		}
	}

	templateService := template.NewTemplateService(repos)
	suppressionService := suppression.NewSuppressionService(repos)
	trackingService := tracking.NewTrackingService(cfg.TrackingConfig, repos, publisher, log)

	return &Services{
		AuthService:        auth.NewAuthService(repos, log),
		TemplateService:    templateService,
		SuppressionService: suppressionService,
		TrackingService:    trackingService,
		SendService: send.NewSendService(
			cfg.TrackingConfig,
			repos,
			templateService,
			suppressionService,
			trackingService,
			jobQueue,
			publisher,
		),
		EventService:    events.NewEventService(repos, suppressionService, publisher),
		RelayService:    smtp.NewRelayClient(cfg.RelayConfig),
		EventsPublisher: publisher,
		JobQueue:        jobQueue,
	}, nil
}
