// Package jobs runs named background events with at-least-once delivery,
// bounded retries and a terminal failure callback.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Event is the envelope delivered to a handler.
type Event struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data"`
	Attempt int             `json:"attempt"`
}

// Handler is the step sequence registered for an event name. Run is retried
// as a whole; OnFailure runs once after the last attempt fails.
type Handler struct {
	Run       func(ctx context.Context, ev Event) error
	OnFailure func(ctx context.Context, ev Event, err error)
}

// Runner accepts events for registered handlers.
type Runner interface {
	Register(name string, h Handler)
	Send(ctx context.Context, name string, data any) (string, error)
}

type options struct {
	newBackOff    func() backoff.BackOff
	log           *zap.Logger
	async         bool
	pollTimeout   time.Duration
	promoteEvery  time.Duration
	failureKeyTTL time.Duration
	heartbeatTTL  time.Duration
}

// Option configures a runner
type Option func(*options)

// WithBackOff sets the factory for the delay policy between attempts.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(o *options) { o.newBackOff = f }
}

// WithLogger sets the runner's logger
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithAsync makes InlineRunner.Send return before the handler runs.
func WithAsync() Option {
	return func(o *options) { o.async = true }
}

// WithPollTimeout bounds how long a Redis worker blocks waiting for work.
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) { o.pollTimeout = d }
}

// WithPromoteInterval sets how often delayed retries are moved back onto the queue.
func WithPromoteInterval(d time.Duration) Option {
	return func(o *options) { o.promoteEvery = d }
}

// WithHeartbeatTTL sets how long a Redis worker may go silent before its
// in-flight jobs are handed to another worker.
func WithHeartbeatTTL(d time.Duration) Option {
	return func(o *options) { o.heartbeatTTL = d }
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	return b
}

func buildOptions(opts []Option) options {
	o := options{
		newBackOff:    defaultBackOff,
		log:           zap.NewNop(),
		pollTimeout:   2 * time.Second,
		promoteEvery:  time.Second,
		failureKeyTTL: 7 * 24 * time.Hour,
		heartbeatTTL:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// runWithRetry executes h.Run up to maxAttempts times and calls h.OnFailure
// once if every attempt failed.
func runWithRetry(ctx context.Context, h Handler, ev Event, maxAttempts int, b backoff.BackOff, log *zap.Logger) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)

	err := backoff.RetryNotify(func() error {
		ev.Attempt++
		return h.Run(ctx, ev)
	}, policy, func(err error, wait time.Duration) {
		log.Warn("job attempt failed, retrying",
			zap.String("job_id", ev.ID),
			zap.String("event", ev.Name),
			zap.Int("attempt", ev.Attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil && h.OnFailure != nil {
		h.OnFailure(ctx, ev, err)
	}
	return err
}
