package auth

import (
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"

	apierr "github.com/mailflux/mailflux/api/errors"
	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/logger"
	"github.com/mailflux/mailflux/internal/repository"
	"github.com/mailflux/mailflux/internal/tracing"
	"github.com/mailflux/mailflux/internal/utils"
)

const bearerPrefix = "Bearer "

type authService struct {
	repositories *repository.Repositories
	log          logger.Logger
}

func NewAuthService(repos *repository.Repositories, log logger.Logger) interfaces.AuthService {
	return &authService{
		repositories: repos,
		log:          log,
	}
}

// Authenticate implements the tenancy gate: Bearer token -> SHA-256 key hash
// -> api key + domain + user + first billing row. The last_used_at stamp is
// fire-and-forget and never fails the request.
func (s *authService) Authenticate(ctx context.Context, authorizationHeader string) (*utils.AuthContext, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "authService.Authenticate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if authorizationHeader == "" {
		return nil, apierr.Unauthorized("Missing Authorization header")
	}
	if !strings.HasPrefix(authorizationHeader, bearerPrefix) {
		return nil, apierr.Unauthorized("Invalid Authorization format")
	}
	rawKey := strings.TrimSpace(authorizationHeader[len(bearerPrefix):])
	if rawKey == "" {
		return nil, apierr.Unauthorized("API key is empty")
	}

	keyHash := utils.HashAPIKey(rawKey)

	apiKey, err := s.repositories.APIKeyRepository.GetByKeyHash(ctx, keyHash)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, apierr.Internal("Failed to authenticate")
	}
	if apiKey == nil {
		return nil, apierr.Unauthorized("Invalid API key")
	}
	if !apiKey.IsActive {
		return nil, apierr.Unauthorized("API key is disabled")
	}

	domain, err := s.repositories.DomainRepository.GetByID(ctx, apiKey.DomainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, apierr.Internal("Failed to authenticate")
	}
	if domain == nil {
		return nil, apierr.Unauthorized("Invalid API key")
	}
	if !domain.TxtVerified {
		return nil, apierr.Forbidden("Domain is not verified")
	}

	user, err := s.repositories.UserRepository.GetByID(ctx, apiKey.UserID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, apierr.Internal("Failed to authenticate")
	}
	if user == nil {
		return nil, apierr.Unauthorized("Invalid API key")
	}

	billing, err := s.repositories.BillingRepository.GetFirstByUserID(ctx, user.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, apierr.Internal("Failed to authenticate")
	}

	go func(keyID string) {
		if err := s.repositories.APIKeyRepository.UpdateLastUsedAt(context.Background(), keyID, utils.Now()); err != nil {
			s.log.Warnf("failed to stamp api key last_used_at: %v", err)
		}
	}(apiKey.ID)

	tracing.TagUserID(span, user.ID)
	return &utils.AuthContext{
		APIKey:  apiKey,
		Domain:  domain,
		User:    user,
		Billing: billing,
	}, nil
}
