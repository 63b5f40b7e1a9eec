package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/dtroode/contestauth/internal/logger"
)

// ErrClosed is returned by tasks submitted after Close.
var ErrClosed = errors.New("worker pool closed")

// Pool runs auth operations off the caller's goroutine with bounded concurrency.
type Pool struct {
	sem    *semaphore.Weighted
	logger *logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(size int, logger *logger.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), logger: logger}
}

// Task is the handle of a submitted function.
type Task[T any] struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	result T
	err    error
}

// Submit schedules fn and returns immediately. fn receives a context that is
// cancelled by Task.Cancel or when ctx ends.
func Submit[T any](p *Pool, ctx context.Context, fn func(context.Context) (T, error)) *Task[T] {
	taskCtx, cancel := context.WithCancel(ctx)
	t := &Task[T]{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		t.err = ErrClosed
		close(t.done)
		return t
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer close(t.done)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Worker pool: task panicked", "task_id", t.id, "panic", fmt.Sprint(r))
				t.err = fmt.Errorf("task panicked: %v", r)
			}
		}()

		if err := p.sem.Acquire(taskCtx, 1); err != nil {
			p.logger.Debug("Worker pool: task cancelled before start", "task_id", t.id)
			t.err = err
			return
		}
		defer p.sem.Release(1)

		// a cancel may race with Acquire
		if err := taskCtx.Err(); err != nil {
			t.err = err
			return
		}

		t.result, t.err = fn(taskCtx)
	}()

	return t
}

// Close rejects new tasks and waits for the running ones.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
}

func (t *Task[T]) ID() string {
	return t.id
}

// Done is closed when the task has finished, successfully or not.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Result returns the value produced by the task. Valid after Done is closed.
func (t *Task[T]) Result() T {
	<-t.done
	return t.result
}

// Err returns the error of the task. Valid after Done is closed.
func (t *Task[T]) Err() error {
	<-t.done
	return t.err
}

// Wait blocks until the task finishes or ctx ends. Giving up on a task does not cancel it.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel cancels the task context. A task that has not started never runs.
func (t *Task[T]) Cancel() {
	t.cancel()
}
