package send

import (
	"context"
	"fmt"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"

	apierr "github.com/mailflux/mailflux/api/errors"
	"github.com/mailflux/mailflux/config"
	"github.com/mailflux/mailflux/dto"
	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/queue"
	"github.com/mailflux/mailflux/internal/repository"
	"github.com/mailflux/mailflux/internal/tracing"
	"github.com/mailflux/mailflux/internal/utils"
)

// StatusQueued is returned once the send intent is durable (event rows plus a
// queued job). StatusSuppressed means every recipient was filtered and no job
// was enqueued.
const (
	StatusQueued     = "queued"
	StatusSuppressed = "suppressed"
)

type sendService struct {
	cfg          *config.TrackingConfig
	repositories *repository.Repositories
	templates    interfaces.TemplateService
	suppressions interfaces.SuppressionService
	tracking     interfaces.TrackingService
	jobQueue     queue.JobQueue
	publisher    interfaces.EventsPublisher
}

func NewSendService(
	cfg *config.TrackingConfig,
	repos *repository.Repositories,
	templates interfaces.TemplateService,
	suppressions interfaces.SuppressionService,
	tracking interfaces.TrackingService,
	jobQueue queue.JobQueue,
	publisher interfaces.EventsPublisher,
) interfaces.SendService {
	return &sendService{
		cfg:          cfg,
		repositories: repos,
		templates:    templates,
		suppressions: suppressions,
		tracking:     tracking,
		jobQueue:     jobQueue,
		publisher:    publisher,
	}
}

func (s *sendService) Send(ctx context.Context, auth *utils.AuthContext, request *dto.SendEmailRequest) (*dto.SendEmailResponse, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sendService.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	from := utils.ParseAddress(request.From)
	fromDomain := utils.ExtractDomainFromEmail(from.Address)
	if fromDomain == "" {
		return nil, apierr.Validation("Invalid from address")
	}
	if fromDomain != strings.ToLower(auth.Domain.Name) {
		err := apierr.Forbidden(fmt.Sprintf("From address must use verified domain %s", auth.Domain.Name))
		tracing.TraceErr(span, err)
		return nil, err
	}

	recipients := request.NormalizedRecipients()
	if len(recipients) == 0 {
		return nil, apierr.Validation("At least one recipient is required")
	}
	for _, recipient := range recipients {
		if validation := mailvalidate.ValidateEmailSyntax(recipient); !validation.IsValid {
			return nil, apierr.Validation(fmt.Sprintf("Invalid recipient address: %s", recipient))
		}
	}

	if auth.Billing != nil && auth.Billing.EmailUsed+int64(len(recipients)) > auth.Billing.EmailLimit {
		err := apierr.QuotaExceeded(fmt.Sprintf(
			"Monthly email limit reached. Used: %d/%d",
			auth.Billing.EmailUsed, auth.Billing.EmailLimit,
		))
		tracing.TraceErr(span, err)
		return nil, err
	}

	subject, htmlBody, textBody, templateID, appErr := s.resolveContent(ctx, auth.User.ID, request)
	if appErr != nil {
		tracing.TraceErr(span, appErr)
		return nil, appErr
	}

	suppressed, err := s.suppressions.Check(ctx, auth.User.ID, recipients, &auth.Domain.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, apierr.Internal("Failed to check suppression list")
	}
	deliverable := filterSuppressed(recipients, suppressed)
	span.LogKV("recipients", len(recipients), "suppressed", len(suppressed))

	messageID := utils.GenerateMessageID(auth.Domain.Name)
	if len(deliverable) == 0 {
		return &dto.SendEmailResponse{
			Success:    true,
			MessageID:  messageID,
			Recipients: 0,
			Suppressed: len(suppressed),
			Status:     StatusSuppressed,
		}, nil
	}

	jobID := utils.GenerateNanoID(24)

	var rewrite *interfaces.RewriteResult
	if htmlBody != "" && !request.DisableTracking &&
		(s.cfg.EnableOpenTracking || s.cfg.EnableClickTracking) {
		rewrite = s.tracking.RewriteHTML(ctx, htmlBody)
		htmlBody = rewrite.ModifiedHTML
	}

	events := make([]*models.EmailEvent, 0, len(deliverable))
	for _, recipient := range deliverable {
		events = append(events, &models.EmailEvent{
			UserID:         auth.User.ID,
			MessageID:      messageID,
			EventType:      enum.EventQueued,
			RecipientEmail: recipient,
			SendingDomain:  auth.Domain.Name,
			Subject:        subject,
			Metadata: models.JSONMap{
				"from":  request.From,
				"jobId": jobID,
			},
		})
	}
	if templateID != "" {
		for _, event := range events {
			event.Metadata["templateId"] = templateID
		}
	}
	if err := s.repositories.EventRepository.CreateBatch(ctx, events); err != nil {
		tracing.TraceErr(span, err)
		return nil, apierr.Internal("Failed to record send intent")
	}

	if rewrite != nil {
		if err := s.persistTracking(ctx, auth, messageID, deliverable, rewrite); err != nil {
			tracing.TraceErr(span, err)
			return nil, apierr.Internal("Failed to record tracking state")
		}
	}

	if auth.Billing != nil {
		if err := s.repositories.BillingRepository.IncrementEmailUsed(ctx, auth.Billing.ID, len(deliverable)); err != nil {
			tracing.TraceErr(span, err)
			return nil, apierr.Internal("Failed to reserve quota")
		}
	}

	job := &dto.EmailJob{
		JobID:       jobID,
		MessageID:   messageID,
		UserID:      auth.User.ID,
		DomainID:    auth.Domain.ID,
		APIKeyID:    auth.APIKey.ID,
		FromName:    from.Name,
		FromAddress: from.Address,
		To:          deliverable,
		Subject:     subject,
		HTML:        htmlBody,
		Text:        textBody,
		ReplyTo:     request.ReplyTo,
		Headers:     request.Headers,
	}
	if err := s.jobQueue.Enqueue(ctx, jobID, job); err != nil {
		tracing.TraceErr(span, err)
		return nil, apierr.Internal("Failed to enqueue message")
	}

	if s.publisher != nil {
		for _, event := range events {
			s.publisher.PublishEmailEvent(ctx, event)
		}
	}

	return &dto.SendEmailResponse{
		Success:    true,
		JobID:      jobID,
		MessageID:  messageID,
		Recipients: len(deliverable),
		Suppressed: len(suppressed),
		Status:     StatusQueued,
	}, nil
}

// resolveContent picks template rendering over inline content when a template
// key is present; subject and at least one body remain mandatory either way.
func (s *sendService) resolveContent(ctx context.Context, userID string, request *dto.SendEmailRequest) (subject, htmlBody, textBody, templateID string, appErr *apierr.AppError) {
	subject = request.Subject
	htmlBody = request.HTML
	textBody = request.Text

	if request.TemplateID != "" {
		rendered, err := s.templates.Render(ctx, userID, request.TemplateID, request.Variables)
		if err != nil {
			return "", "", "", "", apierr.Internal("Failed to render template")
		}
		if rendered == nil {
			return "", "", "", "", apierr.NotFound("Template not found")
		}
		subject = rendered.Subject
		htmlBody = rendered.HTML
		templateID = rendered.TemplateID
	}

	if subject == "" {
		return "", "", "", "", apierr.Validation("Subject is required")
	}
	if htmlBody == "" && textBody == "" {
		return "", "", "", "", apierr.Validation("Either html or text content is required")
	}
	return subject, htmlBody, textBody, templateID, nil
}

// persistTracking stores one open row per recipient and the message's link
// rows. The first recipient owns the pixel id embedded in the shared HTML;
// additional recipients get suffixed ids.
func (s *sendService) persistTracking(ctx context.Context, auth *utils.AuthContext, messageID string, recipients []string, rewrite *interfaces.RewriteResult) error {
	if rewrite.OpenTrackingID != "" {
		opens := make([]*models.EmailTrackingOpen, 0, len(recipients))
		for i, recipient := range recipients {
			id := rewrite.OpenTrackingID
			if i > 0 {
				id = fmt.Sprintf("%s_%d", rewrite.OpenTrackingID, i)
			}
			opens = append(opens, &models.EmailTrackingOpen{
				ID:             id,
				UserID:         auth.User.ID,
				MessageID:      messageID,
				RecipientEmail: recipient,
				SendingDomain:  auth.Domain.Name,
			})
		}
		if err := s.repositories.TrackingRepository.CreateOpens(ctx, opens); err != nil {
			return err
		}
	}

	if len(rewrite.Links) > 0 {
		links := make([]*models.EmailTrackingLink, 0, len(rewrite.Links))
		for _, link := range rewrite.Links {
			links = append(links, &models.EmailTrackingLink{
				ID:             link.TrackingID,
				UserID:         auth.User.ID,
				MessageID:      messageID,
				RecipientEmail: recipients[0],
				SendingDomain:  auth.Domain.Name,
				OriginalURL:    link.OriginalURL,
			})
		}
		if err := s.repositories.TrackingRepository.CreateLinks(ctx, links); err != nil {
			return err
		}
	}
	return nil
}

func filterSuppressed(recipients, suppressed []string) []string {
	if len(suppressed) == 0 {
		return recipients
	}
	blocked := make(map[string]struct{}, len(suppressed))
	for _, email := range suppressed {
		blocked[email] = struct{}{}
	}
	deliverable := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		if _, hit := blocked[utils.NormalizeEmail(recipient)]; !hit {
			deliverable = append(deliverable, recipient)
		}
	}
	return deliverable
}
