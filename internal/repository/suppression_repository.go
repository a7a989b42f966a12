package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/tracing"
)

type suppressionRepository struct {
	db *gorm.DB
}

func NewSuppressionRepository(db *gorm.DB) interfaces.SuppressionRepository {
	return &suppressionRepository{db: db}
}

func (r *suppressionRepository) GetByUserAndEmail(ctx context.Context, userID, email string) (*models.EmailSuppression, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "suppressionRepository.GetByUserAndEmail")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var suppression models.EmailSuppression
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND email = ?", userID, email).
		First(&suppression).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &suppression, nil
}

func (r *suppressionRepository) Create(ctx context.Context, suppression *models.EmailSuppression) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "suppressionRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(suppression).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *suppressionRepository) Update(ctx context.Context, suppression *models.EmailSuppression) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "suppressionRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Save(suppression).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *suppressionRepository) FindBlocking(ctx context.Context, userID string, emails []string, domainID *string) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "suppressionRepository.FindBlocking")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if len(emails) == 0 {
		return nil, nil
	}

	query := r.db.WithContext(ctx).
		Model(&models.EmailSuppression{}).
		Where("user_id = ? AND email IN ? AND reason IN ?", userID, emails, enum.BlockingReasons())
	if domainID != nil {
		query = query.Where("domain_id IS NULL OR domain_id = ?", *domainID)
	} else {
		query = query.Where("domain_id IS NULL")
	}

	var suppressed []string
	if err := query.Pluck("email", &suppressed).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return suppressed, nil
}

func (r *suppressionRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "suppressionRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.EmailSuppression{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *suppressionRepository) List(ctx context.Context, userID string, filter interfaces.SuppressionFilter) ([]*models.EmailSuppression, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "suppressionRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	query := r.db.WithContext(ctx).Model(&models.EmailSuppression{}).Where("user_id = ?", userID)
	if filter.Reason != "" {
		query = query.Where("reason = ?", filter.Reason)
	}
	if filter.Email != "" {
		query = query.Where("email LIKE ?", "%"+filter.Email+"%")
	}
	if filter.DomainID != "" {
		query = query.Where("domain_id = ?", filter.DomainID)
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

	var suppressions []*models.EmailSuppression
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&suppressions).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}
	return suppressions, count, nil
}

func (r *suppressionRepository) CountByReason(ctx context.Context, userID string) (map[enum.SuppressionReason]int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "suppressionRepository.CountByReason")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var rows []struct {
		Reason enum.SuppressionReason
		Total  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.EmailSuppression{}).
		Where("user_id = ?", userID).
		Select("reason, count(*) as total").
		Group("reason").
		Scan(&rows).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	counts := make(map[enum.SuppressionReason]int64, len(rows))
	for _, row := range rows {
		counts[row.Reason] = row.Total
	}
	return counts, nil
}
