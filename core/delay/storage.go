package delay

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage persists delayed messages between receipt and firing. The
// dispatcher assumes it is the only claimer against a given storage; running
// several dispatchers over one store requires a backend with claim semantics.
type Storage interface {
	// CreateMessage stores a new delayed message.
	CreateMessage(ctx context.Context, msg *DelayedMessage) error

	// ClaimDue returns up to limit messages due at or before now, ordered by
	// due time.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*DelayedMessage, error)

	// Reschedule moves a message to a new due time and records when it was
	// last sent.
	Reschedule(ctx context.Context, id uuid.UUID, dueAt, lastSentAt time.Time) error

	// DeleteMessage removes a message after it fired (or is abandoned).
	DeleteMessage(ctx context.Context, id uuid.UUID) error

	// CountPending reports the number of stored messages.
	CountPending(ctx context.Context) (int, error)
}
