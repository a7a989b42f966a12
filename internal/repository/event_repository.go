package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/tracing"
)

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) interfaces.EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, event *models.EmailEvent) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "eventRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *eventRepository) CreateBatch(ctx context.Context, events []*models.EmailEvent) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "eventRepository.CreateBatch")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("count", len(events))

	if len(events) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(events).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *eventRepository) Update(ctx context.Context, event *models.EmailEvent) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "eventRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Save(event).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// MarkQueuedByMessageID only touches rows still in queued state so that
// downstream events (opened, clicked, ...) inserted in the meantime are never
// clobbered by a late worker.
func (r *eventRepository) MarkQueuedByMessageID(ctx context.Context, messageID string, eventType enum.EmailEventType, metadata models.JSONMap) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "eventRepository.MarkQueuedByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("messageId", messageID, "eventType", eventType.String())

	result := r.db.WithContext(ctx).
		Model(&models.EmailEvent{}).
		Where("message_id = ? AND event_type = ?", messageID, enum.EventQueued).
		Updates(map[string]interface{}{
			"event_type": eventType,
			"metadata":   metadata,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *eventRepository) List(ctx context.Context, userID string, filter interfaces.EventFilter) ([]*models.EmailEvent, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "eventRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	query := r.db.WithContext(ctx).Model(&models.EmailEvent{}).Where("user_id = ?", userID)
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.RecipientEmail != "" {
		query = query.Where("recipient_email LIKE ?", "%"+filter.RecipientEmail+"%")
	}
	if filter.MessageID != "" {
		query = query.Where("message_id = ?", filter.MessageID)
	}
	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	var events []*models.EmailEvent
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&events).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}
	return events, count, nil
}

func (r *eventRepository) GetByMessageID(ctx context.Context, userID, messageID string) ([]*models.EmailEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "eventRepository.GetByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var events []*models.EmailEvent
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) CountByType(ctx context.Context, userID string, startDate, endDate *time.Time) (map[enum.EmailEventType]int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "eventRepository.CountByType")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	query := r.db.WithContext(ctx).Model(&models.EmailEvent{}).Where("user_id = ?", userID)
	if startDate != nil {
		query = query.Where("created_at >= ?", *startDate)
	}
	if endDate != nil {
		query = query.Where("created_at <= ?", *endDate)
	}

	var rows []struct {
		EventType enum.EmailEventType
		Total     int64
	}
	if err := query.
		Select("event_type, count(*) as total").
		Group("event_type").
		Scan(&rows).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	counts := make(map[enum.EmailEventType]int64, len(rows))
	for _, row := range rows {
		counts[row.EventType] = row.Total
	}
	return counts, nil
}

func (r *eventRepository) FindStaleQueued(ctx context.Context, olderThan time.Time, limit int) ([]*models.EmailEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "eventRepository.FindStaleQueued")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if limit <= 0 {
		limit = 500
	}
	var events []*models.EmailEvent
	if err := r.db.WithContext(ctx).
		Where("event_type = ? AND created_at < ?", enum.EventQueued, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return events, nil
}
