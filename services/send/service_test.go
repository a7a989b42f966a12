package send

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierr "github.com/mailflux/mailflux/api/errors"
	"github.com/mailflux/mailflux/config"
	"github.com/mailflux/mailflux/dto"
	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/queue"
	"github.com/mailflux/mailflux/internal/repository"
	"github.com/mailflux/mailflux/internal/utils"
)

// --- fakes ---

type fakeEventRepo struct {
	created []*models.EmailEvent
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
	return nil, 0, nil
}

func (f *fakeEventRepo) GetByMessageID(ctx context.Context, userID, messageID string) ([]*models.EmailEvent, error) {
	return nil, nil
}

func (f *fakeEventRepo) CountByType(ctx context.Context, userID string, s, e *time.Time) (map[enum.EmailEventType]int64, error) {
	return nil, nil
}

func (f *fakeEventRepo) FindStaleQueued(ctx context.Context, olderThan time.Time, limit int) ([]*models.EmailEvent, error) {
	return nil, nil
}

type fakeTrackingRepo struct {
	opens []*models.EmailTrackingOpen
	links []*models.EmailTrackingLink
}

func (f *fakeTrackingRepo) CreateOpens(ctx context.Context, opens []*models.EmailTrackingOpen) error {
	f.opens = append(f.opens, opens...)
	return nil
}

func (f *fakeTrackingRepo) CreateLinks(ctx context.Context, links []*models.EmailTrackingLink) error {
	f.links = append(f.links, links...)
	return nil
}

func (f *fakeTrackingRepo) RecordOpen(ctx context.Context, id string) (*models.EmailTrackingOpen, bool, error) {
	return nil, false, nil
}

func (f *fakeTrackingRepo) RecordClick(ctx context.Context, id string) (*models.EmailTrackingLink, bool, error) {
	return nil, false, nil
}

type fakeBillingRepo struct {
	incremented int
	decremented int
}

func (f *fakeBillingRepo) GetFirstByUserID(ctx context.Context, userID string) (*models.UserBilling, error) {
	return nil, nil
}

func (f *fakeBillingRepo) IncrementEmailUsed(ctx context.Context, billingID string, n int) error {
	f.incremented += n
	return nil
}

func (f *fakeBillingRepo) DecrementEmailUsed(ctx context.Context, userID string, n int) error {
	f.decremented += n
	return nil
}

type fakeTemplateService struct {
	rendered *interfaces.RenderedTemplate
}

func (f *fakeTemplateService) Render(ctx context.Context, userID, key string, vars map[string]string) (*interfaces.RenderedTemplate, error) {
	return f.rendered, nil
}

type fakeSuppressionService struct {
	blocked []string
}

func (f *fakeSuppressionService) Check(ctx context.Context, userID string, emails []string, domainID *string) ([]string, error) {
	return f.blocked, nil
}

func (f *fakeSuppressionService) Add(ctx context.Context, userID, email string, reason enum.SuppressionReason, sourceEventID string, domainID *string, metadata models.JSONMap) (*models.EmailSuppression, error) {
	return nil, nil
}

func (f *fakeSuppressionService) HandleSoftBounce(ctx context.Context, userID, email, sourceEventID string, domainID *string) (*models.EmailSuppression, error) {
	return nil, nil
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

type fakeTrackingService struct {
	result *interfaces.RewriteResult
}

func (f *fakeTrackingService) RewriteHTML(ctx context.Context, html string) *interfaces.RewriteResult {
	if f.result == nil {
		return &interfaces.RewriteResult{ModifiedHTML: html}
	}
	return f.result
}

func (f *fakeTrackingService) RecordOpen(ctx context.Context, id, ip, ua string) bool {
	return false
}

func (f *fakeTrackingService) RecordClick(ctx context.Context, id, ip, ua string) (string, bool) {
	return "", false
}

type fakeQueue struct {
	enqueued map[string]interface{}
}

func (f *fakeQueue) Enqueue(ctx context.Context, jobID string, payload interface{}) error {
	if f.enqueued == nil {
		f.enqueued = map[string]interface{}{}
	}
	if _, exists := f.enqueued[jobID]; exists {
		return nil
	}
	f.enqueued[jobID] = payload
	return nil
}

func (f *fakeQueue) Subscribe(ctx context.Context, handler queue.Handler, opts queue.SubscribeOptions) error {
	return nil
}

func (f *fakeQueue) Close() error { return nil }

// --- fixtures ---

type fixture struct {
	svc        interfaces.SendService
	events     *fakeEventRepo
	tracking   *fakeTrackingRepo
	billing    *fakeBillingRepo
	queue      *fakeQueue
	trackerSvc *fakeTrackingService
}

func newFixture(blocked []string) *fixture {
	events := &fakeEventRepo{}
	trackingRepo := &fakeTrackingRepo{}
	billing := &fakeBillingRepo{}
	jobQueue := &fakeQueue{}
	trackerSvc := &fakeTrackingService{result: &interfaces.RewriteResult{
		ModifiedHTML:   `<p>rewritten</p>`,
		OpenTrackingID: "open1234open1234open1234",
		Links: []interfaces.RewrittenLink{
			{TrackingID: "clickaaaaclickaaaaclicka", OriginalURL: "https://a", TrackingURL: "http://t/t/c/clickaaaaclickaaaaclicka"},
		},
	}}

	repos := &repository.Repositories{
		EventRepository:    events,
		TrackingRepository: trackingRepo,
		BillingRepository:  billing,
	}
	cfg := &config.TrackingConfig{
		BaseURL:             "http://t",
		EnableOpenTracking:  true,
		EnableClickTracking: true,
	}

	svc := NewSendService(cfg, repos, &fakeTemplateService{}, &fakeSuppressionService{blocked: blocked}, trackerSvc, jobQueue, nil)
	return &fixture{svc: svc, events: events, tracking: trackingRepo, billing: billing, queue: jobQueue, trackerSvc: trackerSvc}
}

func testAuth() *utils.AuthContext {
	return &utils.AuthContext{
		APIKey: &models.DomainAPIKey{ID: "key1", UserID: "u1", DomainID: "dom1", IsActive: true},
		Domain: &models.Domain{ID: "dom1", UserID: "u1", Name: "example.com", TxtVerified: true},
		User:   &models.User{ID: "u1", Email: "owner@example.com"},
		Billing: &models.UserBilling{
			ID: "bill1", UserID: "u1", EmailLimit: 10, EmailUsed: 0,
		},
	}
}

// --- tests ---

func TestSend_HappyPath(t *testing.T) {
	f := newFixture(nil)

	response, err := f.svc.Send(context.Background(), testAuth(), &dto.SendEmailRequest{
		From:    "alice@example.com",
		To:      dto.Recipients{"bob@x.com"},
		Subject: "Hi",
		HTML:    `<p>hi <a href="https://a">L</a></p>`,
	})
	require.NoError(t, err)

	assert.True(t, response.Success)
	assert.Equal(t, 1, response.Recipients)
	assert.Equal(t, 0, response.Suppressed)
	assert.Equal(t, StatusQueued, response.Status)
	assert.NotEmpty(t, response.JobID)
	assert.Contains(t, response.MessageID, "@example.com>")

	require.Len(t, f.events.created, 1)
	event := f.events.created[0]
	assert.Equal(t, enum.EventQueued, event.EventType)
	assert.Equal(t, "bob@x.com", event.RecipientEmail)
	assert.Equal(t, "example.com", event.SendingDomain)
	assert.Equal(t, response.MessageID, event.MessageID)

	require.Len(t, f.tracking.opens, 1)
	assert.Equal(t, "open1234open1234open1234", f.tracking.opens[0].ID)
	require.Len(t, f.tracking.links, 1)
	assert.Equal(t, "https://a", f.tracking.links[0].OriginalURL)

	assert.Equal(t, 1, f.billing.incremented)

	require.Len(t, f.queue.enqueued, 1)
	job := f.queue.enqueued[response.JobID].(*dto.EmailJob)
	assert.Equal(t, []string{"bob@x.com"}, job.To)
	assert.Equal(t, `<p>rewritten</p>`, job.HTML)
	assert.Equal(t, response.MessageID, job.MessageID)
}

func TestSend_FromDomainMismatch(t *testing.T) {
	f := newFixture(nil)

	_, err := f.svc.Send(context.Background(), testAuth(), &dto.SendEmailRequest{
		From:    "alice@other.com",
		To:      dto.Recipients{"bob@x.com"},
		Subject: "Hi",
		Text:    "hi",
	})
	require.Error(t, err)

	appErr := apierr.From(err)
	assert.Equal(t, 403, appErr.StatusCode)
	assert.Contains(t, appErr.Message, "example.com")

	assert.Empty(t, f.events.created)
	assert.Zero(t, f.billing.incremented)
	assert.Empty(t, f.queue.enqueued)
}

func TestSend_QuotaExhausted(t *testing.T) {
	f := newFixture(nil)
	auth := testAuth()
	auth.Billing.EmailUsed = 10

	_, err := f.svc.Send(context.Background(), auth, &dto.SendEmailRequest{
		From:    "alice@example.com",
		To:      dto.Recipients{"bob@x.com"},
		Subject: "Hi",
		Text:    "hi",
	})
	require.Error(t, err)

	appErr := apierr.From(err)
	assert.Equal(t, 429, appErr.StatusCode)
	assert.Equal(t, "Monthly email limit reached. Used: 10/10", appErr.Message)
	assert.Empty(t, f.events.created)
	assert.Empty(t, f.queue.enqueued)
}

func TestSend_SuppressedRecipientsAreFiltered(t *testing.T) {
	f := newFixture([]string{"bob@x.com"})

	response, err := f.svc.Send(context.Background(), testAuth(), &dto.SendEmailRequest{
		From:    "alice@example.com",
		To:      dto.Recipients{"bob@x.com", "carol@x.com"},
		Subject: "Hi",
		Text:    "hi",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, response.Recipients)
	assert.Equal(t, 1, response.Suppressed)
	assert.Equal(t, StatusQueued, response.Status)

	require.Len(t, f.events.created, 1)
	assert.Equal(t, "carol@x.com", f.events.created[0].RecipientEmail)
	assert.Equal(t, 1, f.billing.incremented)

	job := f.queue.enqueued[response.JobID].(*dto.EmailJob)
	assert.Equal(t, []string{"carol@x.com"}, job.To)
}

func TestSend_AllRecipientsSuppressed(t *testing.T) {
	f := newFixture([]string{"bob@x.com"})

	response, err := f.svc.Send(context.Background(), testAuth(), &dto.SendEmailRequest{
		From:    "alice@example.com",
		To:      dto.Recipients{"bob@x.com"},
		Subject: "Hi",
		Text:    "hi",
	})
	require.NoError(t, err)

	assert.True(t, response.Success)
	assert.Equal(t, 0, response.Recipients)
	assert.Equal(t, 1, response.Suppressed)
	assert.Equal(t, StatusSuppressed, response.Status)
	assert.Empty(t, response.JobID)

	assert.Empty(t, f.events.created)
	assert.Zero(t, f.billing.incremented)
	assert.Empty(t, f.queue.enqueued)
}

func TestSend_TemplateNotFound(t *testing.T) {
	f := newFixture(nil)

	_, err := f.svc.Send(context.Background(), testAuth(), &dto.SendEmailRequest{
		From:       "alice@example.com",
		To:         dto.Recipients{"bob@x.com"},
		TemplateID: "missing",
	})
	require.Error(t, err)
	assert.Equal(t, 404, apierr.From(err).StatusCode)
}

func TestSend_MissingContent(t *testing.T) {
	f := newFixture(nil)

	_, err := f.svc.Send(context.Background(), testAuth(), &dto.SendEmailRequest{
		From:    "alice@example.com",
		To:      dto.Recipients{"bob@x.com"},
		Subject: "Hi",
	})
	require.Error(t, err)
	assert.Equal(t, 400, apierr.From(err).StatusCode)
}

func TestSend_TrackingDisabledByRequest(t *testing.T) {
	f := newFixture(nil)

	response, err := f.svc.Send(context.Background(), testAuth(), &dto.SendEmailRequest{
		From:            "alice@example.com",
		To:              dto.Recipients{"bob@x.com"},
		Subject:         "Hi",
		HTML:            "<p>hi</p>",
		DisableTracking: true,
	})
	require.NoError(t, err)

	assert.Empty(t, f.tracking.opens)
	assert.Empty(t, f.tracking.links)

	job := f.queue.enqueued[response.JobID].(*dto.EmailJob)
	assert.Equal(t, "<p>hi</p>", job.HTML)
}

func TestSend_MultipleRecipientsGetSuffixedOpenIDs(t *testing.T) {
	f := newFixture(nil)

	response, err := f.svc.Send(context.Background(), testAuth(), &dto.SendEmailRequest{
		From:    "alice@example.com",
		To:      dto.Recipients{"bob@x.com", "carol@x.com"},
		Subject: "Hi",
		HTML:    `<p>hi</p>`,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, response.Recipients)

	// one queued row per recipient
	require.Len(t, f.events.created, 2)

	// the first recipient owns the pixel id from the shared HTML
	require.Len(t, f.tracking.opens, 2)
	assert.Equal(t, "open1234open1234open1234", f.tracking.opens[0].ID)
	assert.Equal(t, "bob@x.com", f.tracking.opens[0].RecipientEmail)
	assert.Equal(t, "open1234open1234open1234_1", f.tracking.opens[1].ID)
	assert.Equal(t, "carol@x.com", f.tracking.opens[1].RecipientEmail)

	// link rows are created once per distinct URL, not per recipient
	assert.Len(t, f.tracking.links, 1)
	assert.Equal(t, 2, f.billing.incremented)
}

func TestSend_NoBillingRowSkipsQuota(t *testing.T) {
	f := newFixture(nil)
	auth := testAuth()
	auth.Billing = nil

	response, err := f.svc.Send(context.Background(), auth, &dto.SendEmailRequest{
		From:    "alice@example.com",
		To:      dto.Recipients{"bob@x.com"},
		Subject: "Hi",
		Text:    "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, response.Recipients)
	assert.Zero(t, f.billing.incremented)
}
