package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/mailflux/mailflux/internal/logger"
)

const (
	jobsKey     = "mailflux:jobs"
	dedupPrefix = "mailflux:jobs:dedup:"
	dedupTTL    = 24 * time.Hour

	popTimeout = 2 * time.Second
)

// RedisQueue implements JobQueue on a Redis list with a SETNX dedup marker per
// job id. Retries are re-pushed after an exponential delay; the dedup marker
// is only consulted on the initial Enqueue so redeliveries pass through.
type RedisQueue struct {
	client *redis.Client
	log    logger.Logger

	retryWG sync.WaitGroup
}

func NewRedisQueue(redisURL string, log logger.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis url")
	}
	return &RedisQueue{client: redis.NewClient(opts), log: log}, nil
}

// NewRedisQueueWithClient wires an existing client; used by tests.
func NewRedisQueueWithClient(client *redis.Client, log logger.Logger) *RedisQueue {
	return &RedisQueue{client: client, log: log}
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to encode job payload")
	}

	accepted, err := q.client.SetNX(ctx, dedupPrefix+jobID, 1, dedupTTL).Result()
	if err != nil {
		return errors.Wrap(err, "failed to reserve job id")
	}
	if !accepted {
		// duplicate jobId, the first enqueue wins
		return nil
	}

	return q.push(ctx, Job{ID: jobID, Payload: raw})
}

func (q *RedisQueue) push(ctx context.Context, job Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "failed to encode job")
	}
	if err := q.client.LPush(ctx, jobsKey, encoded).Err(); err != nil {
		return errors.Wrap(err, "failed to push job")
	}
	return nil
}

func (q *RedisQueue) Subscribe(ctx context.Context, handler Handler, opts SubscribeOptions) error {
	opts = opts.withDefaults()

	// Shared token bucket across all consumer goroutines.
	tokens := make(chan struct{}, opts.RatePerSecond)
	ticker := time.NewTicker(time.Second / time.Duration(opts.RatePerSecond))
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case tokens <- struct{}{}:
				default:
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.consumeLoop(ctx, handler, opts, tokens)
		}()
	}

	wg.Wait()
	// let scheduled retries land back on the list before shutdown
	q.retryWG.Wait()
	return nil
}

func (q *RedisQueue) consumeLoop(ctx context.Context, handler Handler, opts SubscribeOptions, tokens <-chan struct{}) {
	for {
		if ctx.Err() != nil {
			return
		}

		result, err := q.client.BRPop(ctx, popTimeout, jobsKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			q.log.Errorf("queue pop failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			q.log.Errorf("queue dropped undecodable job: %v", err)
			continue
		}

		select {
		case <-ctx.Done():
			// give the job back, it was not processed
			if err := q.push(context.Background(), job); err != nil {
				q.log.Errorf("queue failed to return job %s: %v", job.ID, err)
			}
			return
		case <-tokens:
		}

		if err := handler(ctx, job); err != nil {
			q.scheduleRetry(job, opts, err)
		}
	}
}

func (q *RedisQueue) scheduleRetry(job Job, opts SubscribeOptions, cause error) {
	nextAttempt := job.AttemptsMade + 1
	if nextAttempt >= opts.MaxAttempts {
		q.log.Errorf("job %s failed terminally after %d attempts: %v", job.ID, nextAttempt, cause)
		return
	}

	delay := opts.BackoffBase << job.AttemptsMade
	q.log.Warnf("job %s attempt %d failed, retrying in %s: %v", job.ID, nextAttempt, delay, cause)

	retry := Job{ID: job.ID, Payload: job.Payload, AttemptsMade: nextAttempt}
	q.retryWG.Add(1)
	time.AfterFunc(delay, func() {
		defer q.retryWG.Done()
		if err := q.push(context.Background(), retry); err != nil {
			q.log.Errorf("failed to requeue job %s: %v", retry.ID, err)
		}
	})
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
