package channel

import (
	"path"
	"sync"
	"time"
)

// capacityRule overrides the default capacity for channels whose names match a
// glob pattern. Rules are evaluated in registration order; first match wins.
type capacityRule struct {
	pattern  string
	capacity int
}

// channelTable owns the name-to-queue mapping. Queues are created lazily on
// first use with capacity and expiry fixed at that moment; later calls with a
// different configuration keep the existing queue untouched.
type channelTable struct {
	mu       sync.RWMutex
	queues   map[string]*boundedQueue
	capacity int
	expiry   time.Duration
	rules    []capacityRule
}

func newChannelTable(capacity int, expiry time.Duration, rules []capacityRule) *channelTable {
	return &channelTable{
		queues:   make(map[string]*boundedQueue),
		capacity: capacity,
		expiry:   expiry,
		rules:    rules,
	}
}

// capacityFor resolves the capacity for a channel name from the override
// rules, falling back to the table default.
func (t *channelTable) capacityFor(name string) int {
	for _, rule := range t.rules {
		if ok, err := path.Match(rule.pattern, name); err == nil && ok {
			return rule.capacity
		}
	}
	return t.capacity
}

// getOrCreate returns the queue for a channel, creating it on first use.
// Idempotent: an existing queue is returned as-is regardless of current
// configuration.
func (t *channelTable) getOrCreate(name string, now time.Time) (*boundedQueue, error) {
	t.mu.RLock()
	q, ok := t.queues[name]
	t.mu.RUnlock()
	if ok {
		return q, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if q, ok := t.queues[name]; ok {
		return q, nil
	}

	q, err := newBoundedQueue(t.capacityFor(name), t.expiry, now)
	if err != nil {
		return nil, err
	}
	t.queues[name] = q
	return q, nil
}

// get returns an existing queue without creating one.
func (t *channelTable) get(name string) (*boundedQueue, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	q, ok := t.queues[name]
	return q, ok
}

// exists reports whether a channel currently has a queue.
func (t *channelTable) exists(name string) bool {
	_, ok := t.get(name)
	return ok
}

// reap removes queues that are empty and idle past the retention window and
// returns their names so group memberships can be cleaned up. Dropped queues
// wake any stray waiters.
func (t *channelTable) reap(retention time.Duration, now time.Time) []string {
	cutoff := now.Add(-retention)

	t.mu.Lock()
	defer t.mu.Unlock()

	var reaped []string
	for name, q := range t.queues {
		if q.idleSince(cutoff, now) {
			q.drop()
			delete(t.queues, name)
			reaped = append(reaped, name)
		}
	}
	return reaped
}

// prune sweeps expired entries in every queue and returns the total dropped.
func (t *channelTable) prune(now time.Time) int {
	t.mu.RLock()
	queues := make([]*boundedQueue, 0, len(t.queues))
	for _, q := range t.queues {
		queues = append(queues, q)
	}
	t.mu.RUnlock()

	dropped := 0
	for _, q := range queues {
		dropped += q.pruneExpired(now)
	}
	return dropped
}

// flush discards every queue, waking all blocked receivers.
func (t *channelTable) flush() {
	t.mu.Lock()
	old := t.queues
	t.queues = make(map[string]*boundedQueue)
	t.mu.Unlock()

	for _, q := range old {
		q.drop()
	}
}

// len reports the number of known channels.
func (t *channelTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.queues)
}
