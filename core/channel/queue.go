package channel

import (
	"context"
	"slices"
	"sync"
	"time"
)

// queueEntry is one queued message with its lifetime.
type queueEntry struct {
	payload    []byte
	insertedAt time.Time
	expiresAt  time.Time
}

func (e queueEntry) expired(now time.Time) bool {
	return !e.expiresAt.After(now)
}

// boundedQueue is a single channel's mailbox: a capacity-limited FIFO of
// expiring entries with wait/notify delivery. All methods are safe for
// concurrent use; the zero value is not usable, construct via newBoundedQueue.
//
// Capacity and default expiry are fixed at construction. They used to be
// reconfigurable, which allowed races between concurrent reconfiguration and
// delivery; they are immutable now.
type boundedQueue struct {
	mu            sync.Mutex
	entries       []queueEntry
	waiters       []chan struct{}
	capacity      int
	defaultExpiry time.Duration
	lastActive    time.Time
	dropped       bool
}

func newBoundedQueue(capacity int, defaultExpiry time.Duration, now time.Time) (*boundedQueue, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	if defaultExpiry <= 0 {
		return nil, ErrInvalidExpiry
	}
	return &boundedQueue{
		capacity:      capacity,
		defaultExpiry: defaultExpiry,
		lastActive:    now,
	}, nil
}

// enqueue appends an entry expiring at expiresAt and wakes one waiter. It
// fails with ErrChannelFull when the queue already holds capacity live
// entries; expired entries do not count against capacity. An expiresAt in the
// past produces an entry that is already expired: it is accepted here and
// silently dropped at the next access, never delivered.
func (q *boundedQueue) enqueue(payload []byte, expiresAt, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dropped {
		return ErrChannelFull
	}

	q.dropExpiredLocked(now)
	if len(q.entries) >= q.capacity {
		return ErrChannelFull
	}

	q.entries = append(q.entries, queueEntry{
		payload:    payload,
		insertedAt: now,
		expiresAt:  expiresAt,
	})
	q.lastActive = now
	q.signalLocked()
	return nil
}

// dequeue pops the oldest live entry. Expired entries at the front are dropped
// until a live one is found. With the queue exhausted the caller suspends
// until an entry arrives, the timeout elapses (ok=false), or ctx is done.
// A timeout of zero waits until ctx is cancelled.
func (q *boundedQueue) dequeue(ctx context.Context, timeout time.Duration) ([]byte, bool, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		q.mu.Lock()
		if q.dropped {
			q.mu.Unlock()
			return nil, false, nil
		}
		if payload, ok := q.popLocked(time.Now()); ok {
			q.mu.Unlock()
			return payload, true, nil
		}

		w := make(chan struct{}, 1)
		q.waiters = append(q.waiters, w)
		q.mu.Unlock()

		select {
		case <-w:
		case <-deadline:
			q.cancelWaiter(w)
			return nil, false, nil
		case <-ctx.Done():
			q.cancelWaiter(w)
			return nil, false, ctx.Err()
		}
	}
}

// popLocked removes and returns the first live entry, discarding expired ones
// along the way. Callers must hold q.mu.
func (q *boundedQueue) popLocked(now time.Time) ([]byte, bool) {
	for len(q.entries) > 0 {
		head := q.entries[0]
		q.entries = q.entries[1:]
		if head.expired(now) {
			continue
		}
		q.lastActive = now
		return head.payload, true
	}
	return nil, false
}

// pruneExpired removes every expired entry without delivering anything.
// Returns the number of entries dropped. Used by the background sweeper to
// bound memory for channels nobody is reading.
func (q *boundedQueue) pruneExpired(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropExpiredLocked(now)
}

func (q *boundedQueue) dropExpiredLocked(now time.Time) int {
	before := len(q.entries)
	q.entries = slices.DeleteFunc(q.entries, func(e queueEntry) bool {
		return e.expired(now)
	})
	return before - len(q.entries)
}

// signalLocked wakes exactly one waiter if any are registered. Waiter channels
// are buffered so the send never blocks even if the waiter has already raced
// into its select.
func (q *boundedQueue) signalLocked() {
	if len(q.waiters) == 0 {
		return
	}
	w := q.waiters[0]
	q.waiters = q.waiters[1:]
	w <- struct{}{}
}

// cancelWaiter removes a waiter after timeout or cancellation so the registry
// never leaks. If the waiter was already signalled, the wakeup is handed to
// the next waiter rather than lost.
func (q *boundedQueue) cancelWaiter(w chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, cand := range q.waiters {
		if cand == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}

	select {
	case <-w:
		q.signalLocked()
	default:
	}
}

// size reports the number of live entries.
func (q *boundedQueue) size(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dropExpiredLocked(now)
	return len(q.entries)
}

// idleSince reports whether the queue is empty and has seen no activity since
// the cutoff. Used by the reaper to decay unused channels.
func (q *boundedQueue) idleSince(cutoff, now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dropExpiredLocked(now)
	return len(q.entries) == 0 && len(q.waiters) == 0 && q.lastActive.Before(cutoff)
}

// drop marks the queue as discarded and wakes every waiter. Blocked receivers
// observe an empty result instead of waiting out their timeout. Used by Flush
// and by the reaper.
func (q *boundedQueue) drop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.dropped = true
	q.entries = nil
	for _, w := range q.waiters {
		select {
		case w <- struct{}{}:
		default:
		}
	}
	q.waiters = nil
}
