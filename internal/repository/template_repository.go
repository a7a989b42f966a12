package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/tracing"
)

type templateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) interfaces.TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) GetActiveByIDOrSlug(ctx context.Context, userID, key string) (*models.EmailTemplate, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "templateRepository.GetActiveByIDOrSlug")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var template models.EmailTemplate
	err := r.db.WithContext(ctx).
		Preload("Variables").
		Where("user_id = ? AND is_active = true AND (id = ? OR slug = ?)", userID, key, key).
		// id match wins over slug match
		Clauses(clause.OrderBy{Expression: gorm.Expr("CASE WHEN id = ? THEN 0 ELSE 1 END", key)}).
		First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &template, nil
}
