package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierr "github.com/mailflux/mailflux/api/errors"
	"github.com/mailflux/mailflux/dto"
	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/repository"
	"github.com/mailflux/mailflux/internal/utils"
)

type fakeEventRepo struct {
	created []*models.EmailEvent
	counts  map[enum.EmailEventType]int64
}

func (f *fakeEventRepo) Create(ctx context.Context, e *models.EmailEvent) error {
	f.created = append(f.created, e)
	return nil
}

func (f *fakeEventRepo) CreateBatch(ctx context.Context, events []*models.EmailEvent) error {
	f.created = append(f.created, events...)
	return nil
}

func (f *fakeEventRepo) Update(ctx context.Context, e *models.EmailEvent) error { return nil }

func (f *fakeEventRepo) MarkQueuedByMessageID(ctx context.Context, messageID string, t enum.EmailEventType, m models.JSONMap) (int64, error) {
	return 0, nil
}

func (f *fakeEventRepo) List(ctx context.Context, userID string, filter interfaces.EventFilter) ([]*models.EmailEvent, int64, error) {
	return f.created, int64(len(f.created)), nil
}

func (f *fakeEventRepo) GetByMessageID(ctx context.Context, userID, messageID string) ([]*models.EmailEvent, error) {
	var out []*models.EmailEvent
	for _, event := range f.created {
		if event.MessageID == messageID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) CountByType(ctx context.Context, userID string, s, e *time.Time) (map[enum.EmailEventType]int64, error) {
	return f.counts, nil
}

func (f *fakeEventRepo) FindStaleQueued(ctx context.Context, olderThan time.Time, limit int) ([]*models.EmailEvent, error) {
	return nil, nil
}

type suppressionCall struct {
	kind   string
	email  string
	reason enum.SuppressionReason
}

type fakeSuppressionService struct {
	calls []suppressionCall
}

func (f *fakeSuppressionService) Check(ctx context.Context, userID string, emails []string, domainID *string) ([]string, error) {
	return nil, nil
}

func (f *fakeSuppressionService) Add(ctx context.Context, userID, email string, reason enum.SuppressionReason, sourceEventID string, domainID *string, metadata models.JSONMap) (*models.EmailSuppression, error) {
	f.calls = append(f.calls, suppressionCall{"add", email, reason})
	return &models.EmailSuppression{UserID: userID, Email: email, Reason: reason}, nil
}

func (f *fakeSuppressionService) HandleSoftBounce(ctx context.Context, userID, email, sourceEventID string, domainID *string) (*models.EmailSuppression, error) {
	f.calls = append(f.calls, suppressionCall{"soft", email, enum.SuppressionSoftBounce})
	return &models.EmailSuppression{UserID: userID, Email: email, Reason: enum.SuppressionSoftBounce}, nil
}

func (f *fakeSuppressionService) Remove(ctx context.Context, userID, id string) (bool, error) {
	return false, nil
}

func (f *fakeSuppressionService) List(ctx context.Context, userID string, filter interfaces.SuppressionFilter) ([]*models.EmailSuppression, int64, error) {
	return nil, 0, nil
}

func (f *fakeSuppressionService) Stats(ctx context.Context, userID string) (int64, map[enum.SuppressionReason]int64, error) {
	return 0, nil, nil
}

func testAuth() *utils.AuthContext {
	return &utils.AuthContext{
		APIKey: &models.DomainAPIKey{ID: "key1"},
		Domain: &models.Domain{ID: "dom1", Name: "example.com"},
		User:   &models.User{ID: "u1"},
	}
}

func newFixture() (interfaces.EventService, *fakeEventRepo, *fakeSuppressionService) {
	events := &fakeEventRepo{}
	suppressions := &fakeSuppressionService{}
	svc := NewEventService(&repository.Repositories{EventRepository: events}, suppressions, nil)
	return svc, events, suppressions
}

func TestIngest_UnknownEventType(t *testing.T) {
	svc, _, _ := newFixture()
	_, err := svc.Ingest(context.Background(), testAuth(), &dto.IngestEventRequest{
		EventType:      "exploded",
		RecipientEmail: "bob@x.com",
	})
	require.Error(t, err)
	assert.Equal(t, 400, apierr.From(err).StatusCode)
}

func TestIngest_DefaultsMessageID(t *testing.T) {
	svc, events, _ := newFixture()

	event, err := svc.Ingest(context.Background(), testAuth(), &dto.IngestEventRequest{
		EventType:      enum.EventDelivered,
		RecipientEmail: "Bob@X.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "manual_"+event.ID, event.MessageID)
	assert.Equal(t, "bob@x.com", event.RecipientEmail)
	assert.Equal(t, "example.com", event.SendingDomain)
	require.Len(t, events.created, 1)
}

func TestIngest_ComplaintSuppresses(t *testing.T) {
	svc, _, suppressions := newFixture()

	_, err := svc.Ingest(context.Background(), testAuth(), &dto.IngestEventRequest{
		EventType:      enum.EventComplained,
		RecipientEmail: "bob@x.com",
	})
	require.NoError(t, err)

	require.Len(t, suppressions.calls, 1)
	assert.Equal(t, suppressionCall{"add", "bob@x.com", enum.SuppressionComplaint}, suppressions.calls[0])
}

func TestIngest_UnsubscribeSuppresses(t *testing.T) {
	svc, _, suppressions := newFixture()

	_, err := svc.Ingest(context.Background(), testAuth(), &dto.IngestEventRequest{
		EventType:      enum.EventUnsubscribed,
		RecipientEmail: "bob@x.com",
	})
	require.NoError(t, err)

	require.Len(t, suppressions.calls, 1)
	assert.Equal(t, enum.SuppressionUnsubscribe, suppressions.calls[0].reason)
}

func TestIngest_SoftBounceAccumulates(t *testing.T) {
	svc, _, suppressions := newFixture()

	_, err := svc.Ingest(context.Background(), testAuth(), &dto.IngestEventRequest{
		EventType:      enum.EventBounced,
		RecipientEmail: "bob@x.com",
		Metadata:       models.JSONMap{"bounceType": "soft_bounce"},
	})
	require.NoError(t, err)

	require.Len(t, suppressions.calls, 1)
	assert.Equal(t, "soft", suppressions.calls[0].kind)
}

func TestIngest_OtherBouncesAreHard(t *testing.T) {
	svc, _, suppressions := newFixture()

	_, err := svc.Ingest(context.Background(), testAuth(), &dto.IngestEventRequest{
		EventType:      enum.EventBounced,
		RecipientEmail: "bob@x.com",
		Metadata:       models.JSONMap{"bounceType": "mailbox_full"},
	})
	require.NoError(t, err)

	require.Len(t, suppressions.calls, 1)
	assert.Equal(t, suppressionCall{"add", "bob@x.com", enum.SuppressionHardBounce}, suppressions.calls[0])
}

func TestGetByMessageID_GroupsByRecipient(t *testing.T) {
	svc, events, _ := newFixture()
	events.created = []*models.EmailEvent{
		{MessageID: "<m1>", RecipientEmail: "a@x.com", EventType: enum.EventQueued},
		{MessageID: "<m1>", RecipientEmail: "a@x.com", EventType: enum.EventSent},
		{MessageID: "<m1>", RecipientEmail: "b@x.com", EventType: enum.EventQueued},
	}

	grouped, err := svc.GetByMessageID(context.Background(), "u1", "<m1>")
	require.NoError(t, err)
	assert.Len(t, grouped, 2)
	assert.Len(t, grouped["a@x.com"], 2)
	assert.Len(t, grouped["b@x.com"], 1)
}

func TestGetByMessageID_NotFound(t *testing.T) {
	svc, _, _ := newFixture()
	_, err := svc.GetByMessageID(context.Background(), "u1", "<missing>")
	require.Error(t, err)
	assert.Equal(t, 404, apierr.From(err).StatusCode)
}

func TestStats_ComputesRates(t *testing.T) {
	svc, events, _ := newFixture()
	events.counts = map[enum.EmailEventType]int64{
		enum.EventSent:      200,
		enum.EventDelivered: 150,
		enum.EventOpened:    50,
		enum.EventClicked:   10,
		enum.EventBounced:   3,
	}

	stats, err := svc.Stats(context.Background(), "u1", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(413), stats.Total)
	assert.Equal(t, "75.00", stats.DeliveryRate)
	assert.Equal(t, "25.00", stats.OpenRate)
	assert.Equal(t, "5.00", stats.ClickRate)
	assert.Equal(t, "1.50", stats.BounceRate)
}

func TestStats_ZeroSentIsZeroRates(t *testing.T) {
	svc, events, _ := newFixture()
	events.counts = map[enum.EmailEventType]int64{}

	stats, err := svc.Stats(context.Background(), "u1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.00", stats.DeliveryRate)
	assert.Equal(t, "0.00", stats.OpenRate)
}
