package delay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements Storage in memory for testing and local
// development. Safe for concurrent use.
type MemoryStorage struct {
	mu       sync.RWMutex
	messages map[uuid.UUID]*DelayedMessage
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		messages: make(map[uuid.UUID]*DelayedMessage),
	}
}

// CreateMessage stores a copy of the message.
func (ms *MemoryStorage) CreateMessage(ctx context.Context, msg *DelayedMessage) error {
	if msg == nil {
		return fmt.Errorf("delayed message cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.messages[msg.ID]; exists {
		return fmt.Errorf("delayed message %s already exists", msg.ID)
	}

	cp := *msg
	ms.messages[msg.ID] = &cp
	return nil
}

// ClaimDue returns copies of up to limit due messages ordered by due time.
func (ms *MemoryStorage) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*DelayedMessage, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var due []*DelayedMessage
	for _, msg := range ms.messages {
		if msg.Due(now) {
			cp := *msg
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].DueAt.Before(due[j].DueAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Reschedule updates the due time and last-sent timestamp of a stored message.
func (ms *MemoryStorage) Reschedule(ctx context.Context, id uuid.UUID, dueAt, lastSentAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	msg, ok := ms.messages[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	msg.DueAt = dueAt
	sent := lastSentAt
	msg.LastSentAt = &sent
	return nil
}

// DeleteMessage removes a stored message. Deleting an unknown ID is an error.
func (ms *MemoryStorage) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.messages[id]; !ok {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	delete(ms.messages, id)
	return nil
}

// CountPending reports the number of stored messages.
func (ms *MemoryStorage) CountPending(ctx context.Context) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.messages), nil
}
