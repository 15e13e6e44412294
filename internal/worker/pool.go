// Package worker runs best-effort background tasks on a bounded pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Submit after Close has been called.
var ErrClosed = errors.New("worker pool closed")

// ErrFull is returned by Submit when every worker is busy.
var ErrFull = errors.New("worker pool full")

// Task is a unit of background work. It must honour ctx cancellation.
type Task func(ctx context.Context) error

// Config holds pool configuration.
type Config struct {
	Workers int           // maximum concurrent tasks
	Timeout time.Duration // per-task deadline
}

// Pool runs tasks concurrently up to Workers at a time. Submit never blocks:
// when the pool is saturated the task is dropped and ErrFull returned.
// Task errors and panics are logged and never reach the submitter.
type Pool struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	onDone func(name string, err error)
}

// New creates a Pool.
func New(cfg Config, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 16
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(cfg.Workers)),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// SetCompletionRecorder configures a callback run after every task.
func (p *Pool) SetCompletionRecorder(fn func(name string, err error)) {
	p.onDone = fn
}

// Submit schedules fn under name. It returns immediately.
func (p *Pool) Submit(name string, fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if !p.sem.TryAcquire(1) {
		p.logger.Warn("worker pool full, dropping task", zap.String("task", name))
		return ErrFull
	}

	p.wg.Add(1)
	go p.run(name, fn)
	return nil
}

func (p *Pool) run(name string, fn Task) {
	defer p.wg.Done()
	defer p.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx)
	}()

	if err != nil {
		p.logger.Warn("background task failed", zap.String("task", name), zap.Error(err))
	}
	if p.onDone != nil {
		p.onDone(name, err)
	}
}

// Close stops accepting tasks and waits for running ones, or for ctx.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
