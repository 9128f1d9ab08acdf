package research

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/mohammad-safakhou/researcher/internal/logger"
	"golang.org/x/sync/semaphore"
)

// ErrDispatcherClosed is returned by Dispatch after Shutdown has begun.
var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// Task is a unit of background work.
type Task func(ctx context.Context)

// Dispatcher runs tasks in the background with at most N running at once.
// Dispatch never waits for a free slot.
type Dispatcher struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	log    *logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(maxConcurrent int, log *logger.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		ctx:    ctx,
		cancel: cancel,
		log:    log.With("component", "dispatcher"),
	}
}

// Dispatch schedules task. The task context is detached from the caller and
// only cancelled when Shutdown gives up waiting.
func (d *Dispatcher) Dispatch(task Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	go d.run(task)
	return nil
}

func (d *Dispatcher) run(task Task) {
	defer d.wg.Done()
	if err := d.sem.Acquire(d.ctx, 1); err != nil {
		return
	}
	defer d.sem.Release(1)
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("background task panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	task(d.ctx)
}

// Shutdown stops accepting tasks and waits for queued and running ones. When
// ctx expires first, running tasks are cancelled and ctx.Err is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
