package tracking

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/mailflux/mailflux/config"
	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/logger"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/repository"
	"github.com/mailflux/mailflux/internal/tracing"
)

const (
	maxIPLength        = 45
	maxUserAgentLength = 500
)

type trackingService struct {
	cfg          *config.TrackingConfig
	repositories *repository.Repositories
	publisher    interfaces.EventsPublisher
	log          logger.Logger
}

func NewTrackingService(cfg *config.TrackingConfig, repos *repository.Repositories, publisher interfaces.EventsPublisher, log logger.Logger) interfaces.TrackingService {
	return &trackingService{
		cfg:          cfg,
		repositories: repos,
		publisher:    publisher,
		log:          log,
	}
}

func (s *trackingService) RewriteHTML(ctx context.Context, html string) *interfaces.RewriteResult {
	span, _ := opentracing.StartSpanFromContext(ctx, "trackingService.RewriteHTML")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	rw := &rewriter{
		baseURL:      s.cfg.BaseURL,
		enableOpens:  s.cfg.EnableOpenTracking,
		enableClicks: s.cfg.EnableClickTracking,
	}
	result := rw.rewrite(html)
	span.LogKV("links", len(result.Links), "openTrackingId", result.OpenTrackingID)
	return result
}

// RecordOpen feeds the pixel endpoint. Every failure is swallowed: the caller
// serves the GIF no matter what happened here.
func (s *trackingService) RecordOpen(ctx context.Context, id, ipAddress, userAgent string) bool {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackingService.RecordOpen")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, id)

	open, firstTouch, err := s.repositories.TrackingRepository.RecordOpen(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("open tracking update failed for %s: %v", id, err)
		return false
	}
	if open == nil {
		return false
	}

	if firstTouch {
		event := &models.EmailEvent{
			UserID:         open.UserID,
			MessageID:      open.MessageID,
			EventType:      enum.EventOpened,
			RecipientEmail: open.RecipientEmail,
			SendingDomain:  open.SendingDomain,
			IPAddress:      truncate(ipAddress, maxIPLength),
			UserAgent:      truncate(userAgent, maxUserAgentLength),
			Metadata: models.JSONMap{
				"trackingId": open.ID,
				"openCount":  open.OpenCount,
			},
		}
		if err := s.repositories.EventRepository.Create(ctx, event); err != nil {
			tracing.TraceErr(span, err)
			s.log.Warnf("failed to record opened event for %s: %v", open.MessageID, err)
		} else if s.publisher != nil {
			s.publisher.PublishEmailEvent(ctx, event)
		}
	}
	return true
}

// RecordClick mirrors RecordOpen for link redirects and returns the original
// URL for the 302.
func (s *trackingService) RecordClick(ctx context.Context, id, ipAddress, userAgent string) (string, bool) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackingService.RecordClick")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, id)

	link, firstTouch, err := s.repositories.TrackingRepository.RecordClick(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("click tracking update failed for %s: %v", id, err)
		return "", false
	}
	if link == nil {
		return "", false
	}

	if firstTouch {
		event := &models.EmailEvent{
			UserID:         link.UserID,
			MessageID:      link.MessageID,
			EventType:      enum.EventClicked,
			RecipientEmail: link.RecipientEmail,
			SendingDomain:  link.SendingDomain,
			IPAddress:      truncate(ipAddress, maxIPLength),
			UserAgent:      truncate(userAgent, maxUserAgentLength),
			Metadata: models.JSONMap{
				"trackingId":  link.ID,
				"originalUrl": link.OriginalURL,
				"clickCount":  link.ClickCount,
			},
		}
		if err := s.repositories.EventRepository.Create(ctx, event); err != nil {
			tracing.TraceErr(span, err)
			s.log.Warnf("failed to record clicked event for %s: %v", link.MessageID, err)
		} else if s.publisher != nil {
			s.publisher.PublishEmailEvent(ctx, event)
		}
	}
	return link.OriginalURL, true
}

func truncate(value string, max int) string {
	if len(value) > max {
		return value[:max]
	}
	return value
}
