package tasks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/HanTheDev/onboard-assistant/internal/metrics"
)

// Runner executes fire-and-forget work off the request path. Tasks run on a
// fresh context so they outlive the request that spawned them, bounded by
// the runner's timeout. Failures are logged and counted, never returned.
type Runner struct {
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	inflight atomic.Int64
	baseCtx  context.Context
	cancel   context.CancelFunc
}

func NewRunner(timeout time.Duration, logger *zap.Logger, m *metrics.Collector) *Runner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		timeout: timeout,
		logger:  logger,
		metrics: m,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Go schedules fn. It returns false if the runner is shutting down.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("dropping task after shutdown", zap.String("task", name))
		return false
	}
	r.wg.Add(1)
	r.inflight.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.inflight.Add(-1)
		ctx, cancel := context.WithTimeout(r.baseCtx, r.timeout)
		defer cancel()

		if err := r.run(ctx, fn); err != nil {
			r.metrics.TaskFailed(name)
			r.logger.Warn("detached task failed", zap.String("task", name), zap.Error(err))
		}
	}()
	return true
}

func (r *Runner) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

// InFlight is the number of tasks that have not finished yet.
func (r *Runner) InFlight() int64 { return r.inflight.Load() }

// Shutdown stops accepting tasks and waits for in-flight ones. When ctx
// expires first, remaining tasks are cancelled and ctx.Err() is returned.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.logger.Warn("shutdown grace period expired, cancelling tasks",
			zap.Int64("abandoned", r.inflight.Load()))
		r.cancel()
		<-done
		return ctx.Err()
	}
}
