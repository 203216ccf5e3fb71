package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InlineRunner executes events in-process with the same retry and failure
// semantics as the Redis runner. Used by tests and single-process setups.
type InlineRunner struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	maxAttempts int
	opts        options
	wg          sync.WaitGroup
}

// NewInlineRunner creates an inline runner allowing maxAttempts runs per event.
func NewInlineRunner(maxAttempts int, opts ...Option) *InlineRunner {
	return &InlineRunner{
		handlers:    make(map[string]Handler),
		maxAttempts: maxAttempts,
		opts:        buildOptions(opts),
	}
}

func (r *InlineRunner) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Send runs the handler for name. In async mode it returns immediately and
// the run outlives ctx cancellation. Handler failures are not returned; they
// are reported through OnFailure.
func (r *InlineRunner) Send(ctx context.Context, name string, data any) (string, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no handler registered for event %q", name)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode event %q: %w", name, err)
	}
	ev := Event{ID: uuid.NewString(), Name: name, Data: raw}

	run := func(ctx context.Context) {
		if err := runWithRetry(ctx, h, ev, r.maxAttempts, r.opts.newBackOff(), r.opts.log); err != nil {
			r.opts.log.Error("job failed permanently",
				zap.String("job_id", ev.ID),
				zap.String("event", name),
				zap.Error(err),
			)
		}
	}

	if !r.opts.async {
		run(ctx)
		return ev.ID, nil
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		run(context.WithoutCancel(ctx))
	}()
	return ev.ID, nil
}

// Wait blocks until every async run has finished.
func (r *InlineRunner) Wait() {
	r.wg.Wait()
}
