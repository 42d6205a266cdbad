package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

// WorkerPool runs page jobs with bounded concurrency and a minimum spacing
// between job starts. Jobs receive the pool context; once it is cancelled,
// queued jobs are skipped and reported as cancelled.
type WorkerPool struct {
	ctx     context.Context
	spacing time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	nextSlot time.Time
	errs     []error
}

// NewWorkerPool creates a pool bound to ctx. A non-positive concurrency
// runs jobs one at a time.
func NewWorkerPool(ctx context.Context, maxWorkers, rateLimitMs int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		ctx:     ctx,
		spacing: time.Duration(rateLimitMs) * time.Millisecond,
		slots:   make(chan struct{}, maxWorkers),
	}
}

// Submit schedules job. A non-nil error returned by the job is kept for Wait.
func (wp *WorkerPool) Submit(job func(ctx context.Context) error) {
	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()

		select {
		case wp.slots <- struct{}{}:
		case <-wp.ctx.Done():
			wp.record(wp.ctx.Err())
			return
		}
		defer func() { <-wp.slots }()

		if err := wp.waitTurn(); err != nil {
			wp.record(err)
			return
		}
		wp.record(job(wp.ctx))
	}()
}

// Wait blocks until every submitted job has finished and returns their
// errors joined, or nil when all succeeded.
func (wp *WorkerPool) Wait() error {
	wp.wg.Wait()
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return errors.Join(wp.errs...)
}

// waitTurn reserves the next start time and sleeps until it. The first job
// starts immediately.
func (wp *WorkerPool) waitTurn() error {
	wp.mu.Lock()
	now := time.Now()
	start := now
	if wp.nextSlot.After(now) {
		start = wp.nextSlot
	}
	wp.nextSlot = start.Add(wp.spacing)
	wp.mu.Unlock()

	delay := time.Until(start)
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

func (wp *WorkerPool) record(err error) {
	if err == nil {
		return
	}
	wp.mu.Lock()
	wp.errs = append(wp.errs, err)
	wp.mu.Unlock()
}

// URLSet is a thread-safe set for tracking listing URLs already collected.
type URLSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewURLSet() *URLSet {
	return &URLSet{seen: make(map[string]struct{})}
}

// Add reports whether url was new.
func (s *URLSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[url]; ok {
		return false
	}
	s.seen[url] = struct{}{}
	return true
}

func (s *URLSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
