package suppression

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/repository"
	"github.com/mailflux/mailflux/internal/tracing"
	"github.com/mailflux/mailflux/internal/utils"
)

// softBouncePromoteThreshold is the accumulated soft bounce count at which a
// recipient is upgraded to hard_bounce.
const softBouncePromoteThreshold = 3

type suppressionService struct {
	repositories *repository.Repositories
}

func NewSuppressionService(repos *repository.Repositories) interfaces.SuppressionService {
	return &suppressionService{repositories: repos}
}

func (s *suppressionService) Check(ctx context.Context, userID string, emails []string, domainID *string) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "suppressionService.Check")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	normalized := make([]string, 0, len(emails))
	for _, email := range emails {
		normalized = append(normalized, utils.NormalizeEmail(email))
	}

	suppressed, err := s.repositories.SuppressionRepository.FindBlocking(ctx, userID, normalized, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogKV("checked", len(normalized), "suppressed", len(suppressed))
	return suppressed, nil
}

// Add is idempotent per (user, email): an existing row is returned unchanged
// whatever its reason.
func (s *suppressionService) Add(ctx context.Context, userID, email string, reason enum.SuppressionReason, sourceEventID string, domainID *string, metadata models.JSONMap) (*models.EmailSuppression, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "suppressionService.Add")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	email = utils.NormalizeEmail(email)

	existing, err := s.repositories.SuppressionRepository.GetByUserAndEmail(ctx, userID, email)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if existing != nil {
		span.SetTag("duplicate", true)
		return existing, nil
	}

	suppression := &models.EmailSuppression{
		UserID:        userID,
		DomainID:      domainID,
		Email:         email,
		Reason:        reason,
		SourceEventID: sourceEventID,
		Metadata:      metadata,
	}
	if err := s.repositories.SuppressionRepository.Create(ctx, suppression); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return suppression, nil
}

// HandleSoftBounce accumulates soft bounces and promotes the row to
// hard_bounce once the threshold is reached. Rows that already carry another
// reason are never downgraded.
func (s *suppressionService) HandleSoftBounce(ctx context.Context, userID, email, sourceEventID string, domainID *string) (*models.EmailSuppression, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "suppressionService.HandleSoftBounce")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	email = utils.NormalizeEmail(email)

	existing, err := s.repositories.SuppressionRepository.GetByUserAndEmail(ctx, userID, email)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if existing == nil {
		suppression := &models.EmailSuppression{
			UserID:        userID,
			DomainID:      domainID,
			Email:         email,
			Reason:        enum.SuppressionSoftBounce,
			SourceEventID: sourceEventID,
			Metadata: models.JSONMap{
				"softBounceCount": 1,
				"firstBounceAt":   utils.Now(),
			},
		}
		if err := s.repositories.SuppressionRepository.Create(ctx, suppression); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		return suppression, nil
	}

	if existing.Reason != enum.SuppressionSoftBounce {
		return existing, nil
	}

	if existing.Metadata == nil {
		existing.Metadata = models.JSONMap{}
	}
	count, ok := existing.Metadata.Int("softBounceCount")
	if !ok {
		count = 1
	}
	newCount := count + 1

	if newCount >= softBouncePromoteThreshold {
		existing.Reason = enum.SuppressionHardBounce
		existing.Metadata["softBounceCount"] = newCount
		existing.Metadata["upgradedAt"] = utils.Now()
		existing.Metadata["upgradeReason"] = "exceeded soft bounce threshold"
		span.SetTag("promoted", true)
	} else {
		existing.Metadata["softBounceCount"] = newCount
		existing.Metadata["lastBounceAt"] = utils.Now()
	}

	if err := s.repositories.SuppressionRepository.Update(ctx, existing); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return existing, nil
}

func (s *suppressionService) Remove(ctx context.Context, userID, id string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "suppressionService.Remove")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	deleted, err := s.repositories.SuppressionRepository.Delete(ctx, userID, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	return deleted, nil
}

func (s *suppressionService) List(ctx context.Context, userID string, filter interfaces.SuppressionFilter) ([]*models.EmailSuppression, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "suppressionService.List")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.repositories.SuppressionRepository.List(ctx, userID, filter)
}

func (s *suppressionService) Stats(ctx context.Context, userID string) (int64, map[enum.SuppressionReason]int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "suppressionService.Stats")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	byReason, err := s.repositories.SuppressionRepository.CountByReason(ctx, userID)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, nil, err
	}
	var total int64
	for _, count := range byReason {
		total += count
	}
	return total, byReason, nil
}
