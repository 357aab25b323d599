package commit

// limiter.go bounds commit concurrency.
//
// Limiter caps the number of commits running at once across all jobs; a
// commit that cannot get a slot within the wait time fails with
// core.ErrTooManyCommits. jobLocks serializes commits of the same job so the
// second caller observes the first one's finalization.

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/JonMunkholm/storeimport/internal/core"
)

const (
	DefaultMaxConcurrentCommits = 4
	DefaultCommitWaitTime       = 30 * time.Second
)

// Limiter is a weighted semaphore with a bounded wait.
type Limiter struct {
	sem     *semaphore.Weighted
	max     int
	maxWait time.Duration
	active  atomic.Int64
}

// NewLimiter creates a limiter allowing maxConcurrent commits at once.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentCommits
	}
	if maxWait <= 0 {
		maxWait = DefaultCommitWaitTime
	}
	return &Limiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     maxConcurrent,
		maxWait: maxWait,
	}
}

// Acquire waits up to the limiter's wait time for a slot. The caller must
// Release a slot it acquired.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return core.ErrTooManyCommits
		}
		return err
	}
	l.active.Add(1)
	return nil
}

// Release returns a slot.
func (l *Limiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// Active returns the number of commits holding a slot.
func (l *Limiter) Active() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the slot count.
func (l *Limiter) MaxConcurrent() int {
	return l.max
}

// WaitForDrain blocks until no commit holds a slot or ctx is done.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.Active() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot of limiter usage.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current usage.
func (l *Limiter) Status() LimiterStatus {
	active := l.Active()
	return LimiterStatus{
		Active:        active,
		Available:     l.max - active,
		MaxConcurrent: l.max,
	}
}

// jobLocks hands out one mutex per job id. Entries are dropped once no
// caller holds or waits for them.
type jobLocks struct {
	mu    sync.Mutex
	locks map[string]*jobLock
}

type jobLock struct {
	mu   sync.Mutex
	refs int
}

func newJobLocks() *jobLocks {
	return &jobLocks{locks: make(map[string]*jobLock)}
}

// lock blocks until the job's lock is held and returns its unlock func.
func (j *jobLocks) lock(jobID string) func() {
	j.mu.Lock()
	l, ok := j.locks[jobID]
	if !ok {
		l = &jobLock{}
		j.locks[jobID] = l
	}
	l.refs++
	j.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		j.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(j.locks, jobID)
		}
		j.mu.Unlock()
	}
}
