package worker

import (
	"context"
	"encoding/json"
	"net/textproto"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailflux/mailflux/dto"
	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/logger"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/queue"
	"github.com/mailflux/mailflux/internal/repository"
	"github.com/mailflux/mailflux/internal/tracing"
	"github.com/mailflux/mailflux/internal/utils"
)

// Worker drains the job queue and dispatches messages to the SMTP relay.
// Event rows transition queued -> sent on success; on the terminal attempt
// they transition to failed and the reserved quota is rolled back.
type Worker struct {
	repositories *repository.Repositories
	relay        interfaces.RelayService
	jobQueue     queue.JobQueue
	publisher    interfaces.EventsPublisher
	log          logger.Logger
	opts         queue.SubscribeOptions
}

func NewWorker(repos *repository.Repositories, relay interfaces.RelayService, jobQueue queue.JobQueue, publisher interfaces.EventsPublisher, log logger.Logger) *Worker {
	return &Worker{
		repositories: repos,
		relay:        relay,
		jobQueue:     jobQueue,
		publisher:    publisher,
		log:          log,
		opts: queue.SubscribeOptions{
			Concurrency:   queue.DefaultConcurrency,
			RatePerSecond: queue.DefaultRatePerSecond,
			MaxAttempts:   queue.DefaultMaxAttempts,
			BackoffBase:   queue.DefaultBackoffBase,
		},
	}
}

// Run blocks until ctx is cancelled and the subscription has drained.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Infof("worker consuming with concurrency=%d rate=%d/s attempts=%d",
		w.opts.Concurrency, w.opts.RatePerSecond, w.opts.MaxAttempts)
	return w.jobQueue.Subscribe(ctx, w.Handle, w.opts)
}

// Handle processes one delivery job. A returned error asks the queue to
// retry; terminal bookkeeping happens here because only the worker knows the
// attempt budget.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Worker.Handle")
	defer span.Finish()
	tracing.TagComponentWorker(span)
	tracing.TagEntity(span, job.ID)

	var payload dto.EmailJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		tracing.TraceErr(span, err)
		w.log.Errorf("dropping job %s with undecodable payload: %v", job.ID, err)
		return nil
	}
	span.LogKV("messageId", payload.MessageID, "attempt", job.AttemptsMade+1)

	result, err := w.relay.Send(ctx, &payload)
	if err != nil {
		tracing.TraceErr(span, err)
		w.failAttempt(ctx, job, &payload, err)
		return err
	}

	metadata := models.JSONMap{
		"relayResponse": result.Response,
		"accepted":      result.Accepted,
		"rejected":      result.Rejected,
	}
	updated, err := w.repositories.EventRepository.MarkQueuedByMessageID(ctx, payload.MessageID, enum.EventSent, metadata)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	w.log.Infof("message %s sent, %d event rows updated, accepted=%d rejected=%d",
		payload.MessageID, updated, len(result.Accepted), len(result.Rejected))

	if w.publisher != nil {
		w.publisher.PublishEmailEvent(ctx, &models.EmailEvent{
			ID:        models.NewEventID(),
			UserID:    payload.UserID,
			MessageID: payload.MessageID,
			EventType: enum.EventSent,
			CreatedAt: utils.Now(),
		})
	}
	return nil
}

// failAttempt records terminal failures: the queued rows flip to failed and
// the quota reservation is released, clamped at zero. Intermediate failures
// leave the rows queued so a later retry can still move them to sent.
func (w *Worker) failAttempt(ctx context.Context, job queue.Job, payload *dto.EmailJob, cause error) {
	attempt := job.AttemptsMade + 1
	if attempt < w.opts.MaxAttempts {
		return
	}

	metadata := models.JSONMap{
		"error":   cause.Error(),
		"attempt": attempt,
	}
	var protoErr *textproto.Error
	if errors.As(cause, &protoErr) {
		metadata["code"] = protoErr.Code
	}
	if _, err := w.repositories.EventRepository.MarkQueuedByMessageID(ctx, payload.MessageID, enum.EventFailed, metadata); err != nil {
		w.log.Errorf("failed to mark %s failed: %v", payload.MessageID, err)
	}
	if err := w.repositories.BillingRepository.DecrementEmailUsed(ctx, payload.UserID, len(payload.To)); err != nil {
		w.log.Errorf("failed to roll back quota for %s: %v", payload.UserID, err)
	}
	w.log.Errorf("message %s failed terminally after %d attempts: %v", payload.MessageID, attempt, cause)
}
