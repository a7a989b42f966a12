package cron

import (
	"context"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/mailflux/mailflux/config"
	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/logger"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/repository"
	"github.com/mailflux/mailflux/internal/tracing"
	"github.com/mailflux/mailflux/internal/utils"
)

const jobStaleQueued = "stale_queued_sweeper"

const sweepBatchSize = 500

// CronManager runs the worker-process maintenance jobs. Its single job today
// is the stale-queued sweeper: event rows that never left queued (a crash
// between accept and enqueue, or a lost job) are expired to failed and their
// quota reservation is released.
type CronManager struct {
	cfg          *config.CronConfig
	log          logger.Logger
	repositories *repository.Repositories
	cron         *cronv3.Cron
	jobIDs       map[string]cronv3.EntryID
	stopCh       chan struct{}
	mu           sync.Mutex
}

func NewCronManager(cfg *config.CronConfig, log logger.Logger, repos *repository.Repositories) *CronManager {
	return &CronManager{
		cfg:          cfg,
		log:          log,
		repositories: repos,
		jobIDs:       make(map[string]cronv3.EntryID),
		stopCh:       make(chan struct{}),
	}
}

func (cm *CronManager) Start() error {
	cm.cron = cronv3.New()

	id, err := cm.cron.AddFunc(cm.cfg.StaleQueuedSchedule, func() {
		cm.mu.Lock()
		defer cm.mu.Unlock()
		cm.sweepStaleQueued()
	})
	if err != nil {
		return err
	}
	cm.jobIDs[jobStaleQueued] = id

	cm.cron.Start()
	cm.log.Infof("cron manager started, stale-queued sweep on %q", cm.cfg.StaleQueuedSchedule)
	return nil
}

func (cm *CronManager) Stop() {
	close(cm.stopCh)
	if cm.cron != nil {
		ctx := cm.cron.Stop()
		<-ctx.Done()
	}
	cm.log.Info("cron manager stopped")
}

func (cm *CronManager) sweepStaleQueued() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.sweepStaleQueued")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	cutoff := utils.Now().Add(-time.Duration(cm.cfg.StaleQueuedCutoffMinutes) * time.Minute)
	events, err := cm.repositories.EventRepository.FindStaleQueued(ctx, cutoff, sweepBatchSize)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("stale-queued sweep lookup failed: %v", err)
		return
	}
	if len(events) == 0 {
		return
	}

	expired := 0
	for _, event := range events {
		event.EventType = enum.EventFailed
		if event.Metadata == nil {
			event.Metadata = models.JSONMap{}
		}
		event.Metadata["error"] = "expired in queue"
		event.Metadata["expiredAt"] = utils.Now()

		if err := cm.repositories.EventRepository.Update(ctx, event); err != nil {
			tracing.TraceErr(span, err)
			cm.log.Errorf("failed to expire queued event %s: %v", event.ID, err)
			continue
		}
		if err := cm.repositories.BillingRepository.DecrementEmailUsed(ctx, event.UserID, 1); err != nil {
			cm.log.Errorf("failed to roll back quota for %s: %v", event.UserID, err)
		}
		expired++
	}
	span.LogKV("expired", expired)
	cm.log.Infof("stale-queued sweep expired %d events older than %s", expired, cutoff.Format(time.RFC3339))
}
