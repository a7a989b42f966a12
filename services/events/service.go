package events

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"

	apierr "github.com/mailflux/mailflux/api/errors"
	"github.com/mailflux/mailflux/dto"
	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/repository"
	"github.com/mailflux/mailflux/internal/tracing"
	"github.com/mailflux/mailflux/internal/utils"
)

type eventService struct {
	repositories *repository.Repositories
	suppressions interfaces.SuppressionService
	publisher    interfaces.EventsPublisher
}

func NewEventService(repos *repository.Repositories, suppressions interfaces.SuppressionService, publisher interfaces.EventsPublisher) interfaces.EventService {
	return &eventService{
		repositories: repos,
		suppressions: suppressions,
		publisher:    publisher,
	}
}

// Ingest records an externally observed lifecycle event and folds terminal
// outcomes into the suppression list: complaints and unsubscribes suppress
// immediately, bounces suppress hard or accumulate soft.
func (s *eventService) Ingest(ctx context.Context, auth *utils.AuthContext, request *dto.IngestEventRequest) (*models.EmailEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "eventService.Ingest")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if !request.EventType.IsValid() {
		return nil, apierr.Validation(fmt.Sprintf("Unknown event type: %s", request.EventType))
	}
	if request.RecipientEmail == "" {
		return nil, apierr.Validation("recipientEmail is required")
	}

	eventID := models.NewEventID()
	messageID := request.MessageID
	if messageID == "" {
		messageID = "manual_" + eventID
	}

	event := &models.EmailEvent{
		ID:             eventID,
		UserID:         auth.User.ID,
		MessageID:      messageID,
		EventType:      request.EventType,
		RecipientEmail: utils.NormalizeEmail(request.RecipientEmail),
		SendingDomain:  auth.Domain.Name,
		Metadata:       request.Metadata,
	}
	if err := s.repositories.EventRepository.Create(ctx, event); err != nil {
		tracing.TraceErr(span, err)
		return nil, apierr.Internal("Failed to record event")
	}

	if err := s.applySuppression(ctx, auth.User.ID, event, request); err != nil {
		tracing.TraceErr(span, err)
		return nil, apierr.Internal("Failed to update suppression list")
	}

	if s.publisher != nil {
		s.publisher.PublishEmailEvent(ctx, event)
	}
	return event, nil
}

// applySuppression keeps externally reported suppressions global for the
// user (nil domain scope) so they block sends from every domain.
func (s *eventService) applySuppression(ctx context.Context, userID string, event *models.EmailEvent, request *dto.IngestEventRequest) error {
	switch event.EventType {
	case enum.EventComplained:
		_, err := s.suppressions.Add(ctx, userID, event.RecipientEmail, enum.SuppressionComplaint, event.ID, nil, nil)
		return err
	case enum.EventUnsubscribed:
		_, err := s.suppressions.Add(ctx, userID, event.RecipientEmail, enum.SuppressionUnsubscribe, event.ID, nil, nil)
		return err
	case enum.EventBounced:
		bounceType := ""
		if request.Metadata != nil {
			bounceType = request.Metadata.String("bounceType")
		}
		if bounceType == enum.SuppressionSoftBounce.String() {
			_, err := s.suppressions.HandleSoftBounce(ctx, userID, event.RecipientEmail, event.ID, nil)
			return err
		}
		_, err := s.suppressions.Add(ctx, userID, event.RecipientEmail, enum.SuppressionHardBounce, event.ID, nil, nil)
		return err
	}
	return nil
}

func (s *eventService) List(ctx context.Context, userID string, filter interfaces.EventFilter) ([]*models.EmailEvent, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "eventService.List")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.repositories.EventRepository.List(ctx, userID, filter)
}

func (s *eventService) GetByMessageID(ctx context.Context, userID, messageID string) (map[string][]*models.EmailEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "eventService.GetByMessageID")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	events, err := s.repositories.EventRepository.GetByMessageID(ctx, userID, messageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if len(events) == 0 {
		return nil, apierr.NotFound("No events found for message")
	}

	grouped := make(map[string][]*models.EmailEvent)
	for _, event := range events {
		grouped[event.RecipientEmail] = append(grouped[event.RecipientEmail], event)
	}
	return grouped, nil
}

// Stats computes per-type counts plus rates against the sent volume,
// formatted as 2-decimal percentage strings.
func (s *eventService) Stats(ctx context.Context, userID string, startDate, endDate *time.Time) (*dto.EventStats, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "eventService.Stats")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	counts, err := s.repositories.EventRepository.CountByType(ctx, userID, startDate, endDate)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	stats := &dto.EventStats{
		Queued:       counts[enum.EventQueued],
		Sent:         counts[enum.EventSent],
		Delivered:    counts[enum.EventDelivered],
		Opened:       counts[enum.EventOpened],
		Clicked:      counts[enum.EventClicked],
		Bounced:      counts[enum.EventBounced],
		Complained:   counts[enum.EventComplained],
		Unsubscribed: counts[enum.EventUnsubscribed],
		Failed:       counts[enum.EventFailed],
	}
	for _, count := range counts {
		stats.Total += count
	}

	stats.DeliveryRate = rate(stats.Delivered, stats.Sent)
	stats.OpenRate = rate(stats.Opened, stats.Sent)
	stats.ClickRate = rate(stats.Clicked, stats.Sent)
	stats.BounceRate = rate(stats.Bounced, stats.Sent)
	return stats, nil
}

func rate(part, whole int64) string {
	if whole == 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(part)/float64(whole)*100)
}
