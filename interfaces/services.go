package interfaces

import (
	"context"
	"time"

	"github.com/mailflux/mailflux/dto"
	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/utils"
)

type AuthService interface {
	// Authenticate resolves the Authorization header into an AuthContext or an
	// api/errors.AppError carrying the 401/403/500 mapping.
	Authenticate(ctx context.Context, authorizationHeader string) (*utils.AuthContext, error)
}

// RenderedTemplate is the outcome of template resolution and substitution.
type RenderedTemplate struct {
	Subject    string
	HTML       string
	TemplateID string
}

type TemplateService interface {
	// Render returns (nil, nil) when no active template matches the key.
	Render(ctx context.Context, userID, key string, variables map[string]string) (*RenderedTemplate, error)
}

type SuppressionService interface {
	// Check returns the subset of emails blocked for this user/domain scope.
	Check(ctx context.Context, userID string, emails []string, domainID *string) ([]string, error)
	Add(ctx context.Context, userID, email string, reason enum.SuppressionReason, sourceEventID string, domainID *string, metadata models.JSONMap) (*models.EmailSuppression, error)
	HandleSoftBounce(ctx context.Context, userID, email, sourceEventID string, domainID *string) (*models.EmailSuppression, error)
	Remove(ctx context.Context, userID, id string) (bool, error)
	List(ctx context.Context, userID string, filter SuppressionFilter) ([]*models.EmailSuppression, int64, error)
	Stats(ctx context.Context, userID string) (int64, map[enum.SuppressionReason]int64, error)
}

// RewrittenLink describes one rewritten anchor.
type RewrittenLink struct {
	TrackingID  string `json:"trackingId"`
	OriginalURL string `json:"originalUrl"`
	TrackingURL string `json:"trackingUrl"`
}

// RewriteResult is the outcome of HTML tracking instrumentation.
type RewriteResult struct {
	ModifiedHTML   string
	OpenTrackingID string
	Links          []RewrittenLink
}

type TrackingService interface {
	RewriteHTML(ctx context.Context, html string) *RewriteResult
	// RecordOpen never fails the pixel; backend faults are swallowed after
	// tracing. The bool reports whether the tracking id was known.
	RecordOpen(ctx context.Context, id, ipAddress, userAgent string) bool
	// RecordClick returns the redirect target, or found=false for unknown ids.
	RecordClick(ctx context.Context, id, ipAddress, userAgent string) (string, bool)
}

type SendService interface {
	Send(ctx context.Context, auth *utils.AuthContext, request *dto.SendEmailRequest) (*dto.SendEmailResponse, error)
}

type EventService interface {
	Ingest(ctx context.Context, auth *utils.AuthContext, request *dto.IngestEventRequest) (*models.EmailEvent, error)
	List(ctx context.Context, userID string, filter EventFilter) ([]*models.EmailEvent, int64, error)
	// GetByMessageID groups a message's events by recipient.
	GetByMessageID(ctx context.Context, userID, messageID string) (map[string][]*models.EmailEvent, error)
	Stats(ctx context.Context, userID string, startDate, endDate *time.Time) (*dto.EventStats, error)
}

// RelayResult is the SMTP relay's verdict for one dispatch.
type RelayResult struct {
	Response string
	Accepted []string
	Rejected []string
}

type RelayService interface {
	Send(ctx context.Context, job *dto.EmailJob) (*RelayResult, error)
}

// EventsPublisher fans inserted events out to the message broker. Implementations
// must never fail the caller; a nil publisher is allowed where fan-out is
// disabled.
type EventsPublisher interface {
	PublishEmailEvent(ctx context.Context, event *models.EmailEvent)
	Close()
}
