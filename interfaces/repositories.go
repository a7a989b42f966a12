package interfaces

import (
	"context"
	"time"

	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/models"
)

// Lookup methods return (nil, nil) when the row does not exist.

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type DomainRepository interface {
	GetByID(ctx context.Context, id string) (*models.Domain, error)
}

type APIKeyRepository interface {
	GetByKeyHash(ctx context.Context, keyHash string) (*models.DomainAPIKey, error)
	// UpdateLastUsedAt is best-effort; callers ignore its error.
	UpdateLastUsedAt(ctx context.Context, id string, at time.Time) error
}

type BillingRepository interface {
	GetFirstByUserID(ctx context.Context, userID string) (*models.UserBilling, error)
	// IncrementEmailUsed reserves quota with a relative SQL update
	// (email_used = email_used + n), never read-modify-write.
	IncrementEmailUsed(ctx context.Context, billingID string, n int) error
	// DecrementEmailUsed rolls back quota, clamped at zero.
	DecrementEmailUsed(ctx context.Context, userID string, n int) error
}

type TemplateRepository interface {
	// GetActiveByIDOrSlug resolves a template by id first, then slug, scoped
	// to the user and is_active; variables are preloaded.
	GetActiveByIDOrSlug(ctx context.Context, userID, key string) (*models.EmailTemplate, error)
}

// EventFilter narrows event listings.
type EventFilter struct {
	Page           int
	Limit          int
	EventType      enum.EmailEventType
	RecipientEmail string
	MessageID      string
	StartDate      *time.Time
	EndDate        *time.Time
}

type EventRepository interface {
	Create(ctx context.Context, event *models.EmailEvent) error
	CreateBatch(ctx context.Context, events []*models.EmailEvent) error
	Update(ctx context.Context, event *models.EmailEvent) error
	// MarkQueuedByMessageID rewrites the queued rows of a message to the given
	// terminal type. Rows that already moved past queued are left alone.
	MarkQueuedByMessageID(ctx context.Context, messageID string, eventType enum.EmailEventType, metadata models.JSONMap) (int64, error)
	List(ctx context.Context, userID string, filter EventFilter) ([]*models.EmailEvent, int64, error)
	GetByMessageID(ctx context.Context, userID, messageID string) ([]*models.EmailEvent, error)
	CountByType(ctx context.Context, userID string, startDate, endDate *time.Time) (map[enum.EmailEventType]int64, error)
	FindStaleQueued(ctx context.Context, olderThan time.Time, limit int) ([]*models.EmailEvent, error)
}

type TrackingRepository interface {
	CreateOpens(ctx context.Context, opens []*models.EmailTrackingOpen) error
	CreateLinks(ctx context.Context, links []*models.EmailTrackingLink) error
	// RecordOpen bumps open_count and stamps opened_at on first touch.
	// Returns the refreshed row and whether this hit was the first open.
	RecordOpen(ctx context.Context, id string) (*models.EmailTrackingOpen, bool, error)
	RecordClick(ctx context.Context, id string) (*models.EmailTrackingLink, bool, error)
}

// SuppressionFilter narrows suppression listings.
type SuppressionFilter struct {
	Page     int
	Limit    int
	Reason   enum.SuppressionReason
	Email    string
	DomainID string
}

type SuppressionRepository interface {
	GetByUserAndEmail(ctx context.Context, userID, email string) (*models.EmailSuppression, error)
	Create(ctx context.Context, suppression *models.EmailSuppression) error
	Update(ctx context.Context, suppression *models.EmailSuppression) error
	// FindBlocking returns the subset of emails suppressed for the user with a
	// blocking reason, honoring domain scope (domain_id IS NULL, or equals
	// domainID when supplied).
	FindBlocking(ctx context.Context, userID string, emails []string, domainID *string) ([]string, error)
	Delete(ctx context.Context, userID, id string) (bool, error)
	List(ctx context.Context, userID string, filter SuppressionFilter) ([]*models.EmailSuppression, int64, error)
	CountByReason(ctx context.Context, userID string) (map[enum.SuppressionReason]int64, error)
}
