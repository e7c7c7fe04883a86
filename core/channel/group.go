package channel

import (
	"sync"
	"time"
)

// groupRegistry owns the group-name to member-set mapping with per-membership
// expiry. Memberships auto-expire unless refreshed by re-adding; expired
// entries are pruned lazily on read and by the periodic sweep.
type groupRegistry struct {
	mu     sync.RWMutex
	groups map[string]map[string]time.Time
	expiry time.Duration
}

func newGroupRegistry(expiry time.Duration) *groupRegistry {
	return &groupRegistry{
		groups: make(map[string]map[string]time.Time),
		expiry: expiry,
	}
}

// add upserts a membership with a fresh expiry. Idempotent: re-adding an
// existing member only refreshes its expiry, never duplicates it.
func (r *groupRegistry) add(group, channel string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		members = make(map[string]time.Time)
		r.groups[group] = members
	}
	members[channel] = now.Add(r.expiry)
}

// discard removes a membership if present. Absence is not an error.
func (r *groupRegistry) discard(group, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		return
	}
	delete(members, channel)
	if len(members) == 0 {
		delete(r.groups, group)
	}
}

// members returns the live members of a group, pruning expired memberships on
// the way. Iteration order is unspecified; callers must not rely on it.
func (r *groupRegistry) members(group string, now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		return nil
	}

	live := make([]string, 0, len(members))
	for channel, expiresAt := range members {
		if !expiresAt.After(now) {
			delete(members, channel)
			continue
		}
		live = append(live, channel)
	}
	if len(members) == 0 {
		delete(r.groups, group)
	}
	return live
}

// removeChannel drops a channel from every group. Called when the reaper
// decays the channel's queue.
func (r *groupRegistry) removeChannel(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for group, members := range r.groups {
		delete(members, channel)
		if len(members) == 0 {
			delete(r.groups, group)
		}
	}
}

// sweep removes expired memberships across all groups and returns the count.
func (r *groupRegistry) sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for group, members := range r.groups {
		for channel, expiresAt := range members {
			if !expiresAt.After(now) {
				delete(members, channel)
				removed++
			}
		}
		if len(members) == 0 {
			delete(r.groups, group)
		}
	}
	return removed
}

// flush discards every group.
func (r *groupRegistry) flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = make(map[string]map[string]time.Time)
}

// len reports the number of groups with at least one member record.
func (r *groupRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}
