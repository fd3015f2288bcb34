// Package ratelimit gates outbound submissions with a permit pool that is
// refilled in full at a fixed interval.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter hands out at most maxCalls permits per period. Unused permits
// carry over but the pool never holds more than maxCalls.
type Limiter struct {
	permits  chan struct{}
	maxCalls int
	period   time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New starts a limiter with a full pool. maxCalls <= 0 disables limiting.
func New(maxCalls int, period time.Duration) *Limiter {
	l := &Limiter{
		maxCalls: maxCalls,
		period:   period,
		stop:     make(chan struct{}),
	}
	if maxCalls <= 0 {
		return l
	}
	if l.period <= 0 {
		l.period = time.Second
	}

	l.permits = make(chan struct{}, maxCalls)
	l.refill()

	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Limiter) run() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.refill()
		}
	}
}

// refill tops the pool up to maxCalls; a full pool is left untouched.
func (l *Limiter) refill() {
	for i := 0; i < l.maxCalls; i++ {
		select {
		case l.permits <- struct{}{}:
		default:
			return
		}
	}
}

// Acquire takes one permit, suspending until the next refill if the pool
// is empty. Waiters are woken in arrival order. ctx is only observed while
// suspended; a free permit is always taken.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.permits == nil {
		return nil
	}
	select {
	case <-l.permits:
		return nil
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.permits:
		return nil
	}
}

// Available reports the permits currently in the pool.
func (l *Limiter) Available() int {
	if l.permits == nil {
		return 0
	}
	return len(l.permits)
}

func (l *Limiter) MaxCalls() int { return l.maxCalls }

// Stop halts the refill loop. Permits already in the pool stay usable.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
	l.wg.Wait()
}
