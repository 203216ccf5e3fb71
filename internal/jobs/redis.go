package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RedisRunner is an at-least-once runner backed by Redis lists.
//
// Pending events wait on jobs:<name>. A worker moves an event atomically to
// its own instance's processing list and removes it only after the run is
// settled. Every instance keeps a heartbeat key alive; the processing list of
// an instance whose heartbeat has expired is moved back onto the queue by a
// live peer. Failed attempts are parked in the jobs:<name>:delayed sorted set
// until their backoff elapses.
type RedisRunner struct {
	client      *redis.Client
	instance    string
	mu          sync.RWMutex
	handlers    map[string]Handler
	maxAttempts int
	concurrency int
	opts        options
}

// NewRedisRunner creates a runner. concurrency is the number of workers per
// registered event name.
func NewRedisRunner(client *redis.Client, maxAttempts, concurrency int, opts ...Option) *RedisRunner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &RedisRunner{
		client:      client,
		instance:    uuid.NewString(),
		handlers:    make(map[string]Handler),
		maxAttempts: maxAttempts,
		concurrency: concurrency,
		opts:        buildOptions(opts),
	}
}

func queueKey(name string) string   { return "jobs:" + name }
func delayedKey(name string) string { return "jobs:" + name + ":delayed" }
func workersKey(name string) string { return "jobs:" + name + ":workers" }
func failedKey(id string) string    { return "jobs:failed:" + id }

func processingKey(name, instance string) string {
	return "jobs:" + name + ":processing:" + instance
}

func heartbeatKey(instance string) string { return "jobs:heartbeat:" + instance }

func (r *RedisRunner) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Send enqueues an event. No handler needs to be registered in the sending process.
func (r *RedisRunner) Send(ctx context.Context, name string, data any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode event %q: %w", name, err)
	}
	ev := Event{ID: uuid.NewString(), Name: name, Data: raw}
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := r.client.LPush(ctx, queueKey(name), payload).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue event %q: %w", name, err)
	}
	return ev.ID, nil
}

// Start registers this instance, reclaims work left by dead instances and
// runs workers until ctx is cancelled.
func (r *RedisRunner) Start(ctx context.Context) error {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	if len(names) == 0 {
		return errors.New("no job handlers registered")
	}

	if err := r.beat(ctx, names); err != nil {
		return fmt.Errorf("failed to register job worker: %w", err)
	}
	for _, name := range names {
		if err := r.reclaim(ctx, name); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		for i := 0; i < r.concurrency; i++ {
			g.Go(func() error { return r.work(gctx, name) })
		}
		g.Go(func() error { return r.promote(gctx, name) })
	}
	g.Go(func() error { return r.heartbeat(gctx, names) })

	r.opts.log.Info("job runner started",
		zap.String("instance", r.instance),
		zap.Strings("events", names),
		zap.Int("concurrency", r.concurrency),
	)
	err := g.Wait()
	r.release(context.WithoutCancel(ctx), names)
	return err
}

// beat refreshes this instance's heartbeat and makes it discoverable.
func (r *RedisRunner) beat(ctx context.Context, names []string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, heartbeatKey(r.instance), time.Now().UnixMilli(), r.opts.heartbeatTTL)
		for _, name := range names {
			pipe.SAdd(ctx, workersKey(name), r.instance)
		}
		return nil
	})
	return err
}

// heartbeat keeps this instance alive and periodically reclaims work from
// instances that stopped beating.
func (r *RedisRunner) heartbeat(ctx context.Context, names []string) error {
	ticker := time.NewTicker(r.opts.heartbeatTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := r.beat(ctx, names); err != nil && ctx.Err() == nil {
			r.opts.log.Error("failed to refresh worker heartbeat", zap.Error(err))
		}
		for _, name := range names {
			if err := r.reclaim(ctx, name); err != nil && ctx.Err() == nil {
				r.opts.log.Error("failed to reclaim jobs", zap.String("event", name), zap.Error(err))
			}
		}
	}
}

// reclaim requeues the processing lists of instances whose heartbeat expired.
func (r *RedisRunner) reclaim(ctx context.Context, name string) error {
	peers, err := r.client.SMembers(ctx, workersKey(name)).Result()
	if err != nil {
		return fmt.Errorf("failed to list job workers: %w", err)
	}
	for _, peer := range peers {
		if peer == r.instance {
			continue
		}
		alive, err := r.client.Exists(ctx, heartbeatKey(peer)).Result()
		if err != nil {
			return fmt.Errorf("failed to check worker heartbeat: %w", err)
		}
		if alive > 0 {
			continue
		}

		n, err := r.requeue(ctx, name, peer)
		if err != nil {
			return err
		}
		if err := r.client.SRem(ctx, workersKey(name), peer).Err(); err != nil {
			return fmt.Errorf("failed to forget job worker: %w", err)
		}
		if n > 0 {
			r.opts.log.Warn("requeued jobs from dead worker",
				zap.String("event", name),
				zap.String("worker", peer),
				zap.Int("count", n),
			)
		}
	}
	return nil
}

// requeue moves everything in instance's processing list back onto the queue.
func (r *RedisRunner) requeue(ctx context.Context, name, instance string) (int, error) {
	n := 0
	for {
		err := r.client.LMove(ctx, processingKey(name, instance), queueKey(name), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("failed to requeue orphaned jobs: %w", err)
		}
		n++
	}
}

// release hands interrupted work back to the queue and deregisters this
// instance. It runs after every worker has returned.
func (r *RedisRunner) release(ctx context.Context, names []string) {
	for _, name := range names {
		n, err := r.requeue(ctx, name, r.instance)
		if err != nil {
			// the heartbeat still expires and a peer picks the list up
			r.opts.log.Error("failed to release jobs", zap.String("event", name), zap.Error(err))
			continue
		}
		if n > 0 {
			r.opts.log.Info("released interrupted jobs", zap.String("event", name), zap.Int("count", n))
		}
		_ = r.client.SRem(ctx, workersKey(name), r.instance).Err()
	}
	_ = r.client.Del(ctx, heartbeatKey(r.instance)).Err()
}

func (r *RedisRunner) work(ctx context.Context, name string) error {
	for ctx.Err() == nil {
		raw, err := r.client.BLMove(ctx, queueKey(name), processingKey(name, r.instance), "RIGHT", "LEFT", r.opts.pollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			r.opts.log.Error("failed to fetch job", zap.String("event", name), zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		r.process(ctx, name, raw)
	}
	return nil
}

func (r *RedisRunner) process(ctx context.Context, name, raw string) {
	log := r.opts.log.With(zap.String("event", name))

	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		log.Error("dropping malformed job", zap.Error(err))
		r.ack(ctx, name, raw)
		return
	}
	log = log.With(zap.String("job_id", ev.ID))

	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		log.Error("dropping job without handler")
		r.ack(ctx, name, raw)
		return
	}

	ev.Attempt++
	err := h.Run(ctx, ev)
	if err == nil {
		r.ack(ctx, name, raw)
		return
	}
	if ctx.Err() != nil {
		// left in the processing list; released when the runner stops
		log.Warn("job interrupted by shutdown", zap.Int("attempt", ev.Attempt))
		return
	}

	var permanent *backoff.PermanentError
	if ev.Attempt < r.maxAttempts && !errors.As(err, &permanent) {
		delay := r.delay(ev.Attempt)
		log.Warn("job attempt failed, retrying",
			zap.Int("attempt", ev.Attempt),
			zap.Duration("wait", delay),
			zap.Error(err),
		)
		if serr := r.schedule(ctx, name, raw, ev, delay); serr != nil {
			log.Error("failed to schedule retry", zap.Error(serr))
		}
		return
	}

	log.Error("job failed permanently", zap.Int("attempt", ev.Attempt), zap.Error(err))
	first, serr := r.client.SetNX(ctx, failedKey(ev.ID), ev.Attempt, r.opts.failureKeyTTL).Result()
	if serr != nil {
		log.Error("failed to record job failure", zap.Error(serr))
		return
	}
	if first && h.OnFailure != nil {
		h.OnFailure(context.WithoutCancel(ctx), ev, err)
	}
	r.ack(ctx, name, raw)
}

// delay returns the backoff wait after the given failed attempt.
func (r *RedisRunner) delay(attempt int) time.Duration {
	b := r.opts.newBackOff()
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	if d < 0 {
		return 0
	}
	return d
}

func (r *RedisRunner) schedule(ctx context.Context, name, raw string, ev Event, delay time.Duration) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, delayedKey(name), redis.Z{Score: due, Member: payload})
		pipe.LRem(ctx, processingKey(name, r.instance), 1, raw)
		return nil
	})
	return err
}

func (r *RedisRunner) ack(ctx context.Context, name, raw string) {
	if err := r.client.LRem(context.WithoutCancel(ctx), processingKey(name, r.instance), 1, raw).Err(); err != nil {
		r.opts.log.Error("failed to acknowledge job", zap.String("event", name), zap.Error(err))
	}
}

// promote moves retries whose delay has elapsed back onto the queue.
func (r *RedisRunner) promote(ctx context.Context, name string) error {
	ticker := time.NewTicker(r.opts.promoteEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		now := strconv.FormatInt(time.Now().UnixMilli(), 10)
		due, err := r.client.ZRangeByScore(ctx, delayedKey(name), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
		if err != nil {
			if ctx.Err() == nil {
				r.opts.log.Error("failed to read delayed jobs", zap.String("event", name), zap.Error(err))
			}
			continue
		}
		for _, payload := range due {
			// only the instance that removes the entry requeues it
			removed, err := r.client.ZRem(ctx, delayedKey(name), payload).Result()
			if err != nil || removed == 0 {
				continue
			}
			if err := r.client.LPush(ctx, queueKey(name), payload).Err(); err != nil {
				r.opts.log.Error("failed to requeue delayed job", zap.String("event", name), zap.Error(err))
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
