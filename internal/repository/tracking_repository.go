package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/tracing"
	"github.com/mailflux/mailflux/internal/utils"
)

type trackingRepository struct {
	db *gorm.DB
}

func NewTrackingRepository(db *gorm.DB) interfaces.TrackingRepository {
	return &trackingRepository{db: db}
}

func (r *trackingRepository) CreateOpens(ctx context.Context, opens []*models.EmailTrackingOpen) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackingRepository.CreateOpens")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if len(opens) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(opens).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *trackingRepository) CreateLinks(ctx context.Context, links []*models.EmailTrackingLink) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackingRepository.CreateLinks")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if len(links) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(links).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// RecordOpen increments the counter with a relative update and stamps
// opened_at only when it is still null. First touch is derived from the state
// before the update.
func (r *trackingRepository) RecordOpen(ctx context.Context, id string) (*models.EmailTrackingOpen, bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackingRepository.RecordOpen")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var open models.EmailTrackingOpen
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&open).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		tracing.TraceErr(span, err)
		return nil, false, err
	}
	firstTouch := open.OpenedAt == nil

	err := r.db.WithContext(ctx).
		Model(&models.EmailTrackingOpen{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"open_count": gorm.Expr("open_count + 1"),
			"opened_at":  gorm.Expr("COALESCE(opened_at, ?)", utils.Now()),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, false, err
	}

	open.OpenCount++
	if open.OpenedAt == nil {
		open.OpenedAt = utils.NowPtr()
	}
	return &open, firstTouch, nil
}

func (r *trackingRepository) RecordClick(ctx context.Context, id string) (*models.EmailTrackingLink, bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackingRepository.RecordClick")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var link models.EmailTrackingLink
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		tracing.TraceErr(span, err)
		return nil, false, err
	}
	firstTouch := link.ClickedAt == nil

	err := r.db.WithContext(ctx).
		Model(&models.EmailTrackingLink{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"click_count": gorm.Expr("click_count + 1"),
			"clicked_at":  gorm.Expr("COALESCE(clicked_at, ?)", utils.Now()),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, false, err
	}

	link.ClickCount++
	if link.ClickedAt == nil {
		link.ClickedAt = utils.NowPtr()
	}
	return &link, firstTouch, nil
}
