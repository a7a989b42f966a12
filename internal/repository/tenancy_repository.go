package repository

import (
	"context"
	"errors"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/tracing"
)

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) interfaces.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "userRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &user, nil
}

type domainRepository struct {
	db *gorm.DB
}

func NewDomainRepository(db *gorm.DB) interfaces.DomainRepository {
	return &domainRepository{db: db}
}

func (r *domainRepository) GetByID(ctx context.Context, id string) (*models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "domainRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var domain models.Domain
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&domain).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &domain, nil
}

type apiKeyRepository struct {
	db *gorm.DB
}

func NewAPIKeyRepository(db *gorm.DB) interfaces.APIKeyRepository {
	return &apiKeyRepository{db: db}
}

func (r *apiKeyRepository) GetByKeyHash(ctx context.Context, keyHash string) (*models.DomainAPIKey, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "apiKeyRepository.GetByKeyHash")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var apiKey models.DomainAPIKey
	if err := r.db.WithContext(ctx).Where("key_hash = ?", keyHash).First(&apiKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &apiKey, nil
}

func (r *apiKeyRepository) UpdateLastUsedAt(ctx context.Context, id string, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "apiKeyRepository.UpdateLastUsedAt")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.DomainAPIKey{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

type billingRepository struct {
	db *gorm.DB
}

func NewBillingRepository(db *gorm.DB) interfaces.BillingRepository {
	return &billingRepository{db: db}
}

func (r *billingRepository) GetFirstByUserID(ctx context.Context, userID string) (*models.UserBilling, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "billingRepository.GetFirstByUserID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var billing models.UserBilling
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		First(&billing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &billing, nil
}

func (r *billingRepository) IncrementEmailUsed(ctx context.Context, billingID string, n int) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "billingRepository.IncrementEmailUsed")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.UserBilling{}).
		Where("id = ?", billingID).
		Update("email_used", gorm.Expr("email_used + ?", n)).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *billingRepository) DecrementEmailUsed(ctx context.Context, userID string, n int) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "billingRepository.DecrementEmailUsed")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.UserBilling{}).
		Where("user_id = ?", userID).
		Update("email_used", gorm.Expr("GREATEST(0, email_used - ?)", n)).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}
