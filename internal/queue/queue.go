// Package queue implements the bounded work queue between ingestion and the worker pool.
package queue

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueFull = errors.New("queue: full")
	ErrClosed    = errors.New("queue: closed")
)

// Policy decides what Enqueue does when the queue is at capacity.
type Policy int

const (
	// Block suspends the producer until a consumer frees a slot.
	Block Policy = iota
	// Reject fails fast with ErrQueueFull.
	Reject
)

// ParsePolicy maps a config string onto a Policy, defaulting to Block.
func ParsePolicy(s string) Policy {
	if s == "reject" {
		return Reject
	}
	return Block
}

// Queue is a FIFO with an optional capacity and task-done accounting.
// A zero or negative capacity means unbounded.
type Queue[T any] struct {
	mu         sync.Mutex
	items      []T
	capacity   int
	policy     Policy
	closed     bool
	unfinished int
	// changed is closed and replaced on every state change; waiters
	// re-check their condition after it fires.
	changed chan struct{}
}

func New[T any](capacity int, policy Policy) *Queue[T] {
	return &Queue[T]{
		capacity: capacity,
		policy:   policy,
		changed:  make(chan struct{}),
	}
}

func (q *Queue[T]) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Enqueue adds item to the tail of the queue.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		if q.capacity <= 0 || len(q.items) < q.capacity {
			q.items = append(q.items, item)
			q.unfinished++
			q.broadcastLocked()
			q.mu.Unlock()
			return nil
		}
		if q.policy == Reject {
			q.mu.Unlock()
			return ErrQueueFull
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Dequeue removes the head of the queue, blocking until one is available.
// Items still queued after Close are handed out before ErrClosed.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			q.broadcastLocked()
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-wait:
		}
	}
}

// Done marks one previously dequeued item as fully handled.
func (q *Queue[T]) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished <= 0 {
		panic("queue: Done called more times than items were enqueued")
	}
	q.unfinished--
	if q.unfinished == 0 {
		q.broadcastLocked()
	}
}

// Wait blocks until every enqueued item has been marked Done.
func (q *Queue[T]) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.unfinished == 0 {
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Close rejects further Enqueue calls and wakes every waiter.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.broadcastLocked()
}

// Drain removes and returns the items still queued. Each drained item
// counts as handled.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	q.unfinished -= len(out)
	if len(out) > 0 {
		q.broadcastLocked()
	}
	return out
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Unfinished is the number of enqueued items not yet marked Done.
func (q *Queue[T]) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

func (q *Queue[T]) Cap() int { return q.capacity }
