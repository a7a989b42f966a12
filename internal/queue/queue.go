package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Job is one unit of work delivered to a subscriber. AttemptsMade counts
// previous failed deliveries, so the first delivery sees 0.
type Job struct {
	ID           string          `json:"id"`
	Payload      json.RawMessage `json:"payload"`
	AttemptsMade int             `json:"attemptsMade"`
}

// Handler processes one job. A non-nil error triggers a retry until the
// subscription's attempt budget is spent.
type Handler func(ctx context.Context, job Job) error

// SubscribeOptions tune a consumer. Zero values fall back to the defaults.
type SubscribeOptions struct {
	Concurrency   int
	RatePerSecond int
	MaxAttempts   int
	BackoffBase   time.Duration
}

const (
	DefaultConcurrency   = 5
	DefaultRatePerSecond = 100
	DefaultMaxAttempts   = 3
	DefaultBackoffBase   = time.Second
)

func (o SubscribeOptions) withDefaults() SubscribeOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = DefaultRatePerSecond
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	return o
}

// JobQueue is an at-least-once durable queue with dedup by job id: a second
// Enqueue of an id that was already accepted is a no-op.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string, payload interface{}) error
	// Subscribe blocks until ctx is cancelled, then waits for in-flight jobs.
	Subscribe(ctx context.Context, handler Handler, opts SubscribeOptions) error
	Close() error
}
