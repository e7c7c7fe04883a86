package delay

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/channelkit/integration/database/pg"
)

// Migrations holds the goose migrations for the delayed_messages table.
// Apply with pg.Migrate before using PostgresStorage.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations to pass to pg.Migrate.
const MigrationsDir = "migrations"

// PostgresStorage implements Storage on PostgreSQL via pgx. Operations honor
// a transaction carried in the context by pg.WithTx; otherwise they run
// directly against the pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// querier is the subset of pgx shared by pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// NewPostgresStorage creates a PostgreSQL-backed delayed message storage.
func NewPostgresStorage(pool *pgxpool.Pool) (*PostgresStorage, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: pgx pool is nil", ErrStorageNil)
	}
	return &PostgresStorage{pool: pool}, nil
}

func (s *PostgresStorage) q(ctx context.Context) querier {
	if tx, ok := pg.TxFromContext(ctx); ok {
		return tx
	}
	return s.pool
}

// CreateMessage stores a new delayed message.
func (s *PostgresStorage) CreateMessage(ctx context.Context, msg *DelayedMessage) error {
	if msg == nil {
		return fmt.Errorf("delayed message cannot be nil")
	}

	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO delayed_messages (id, channel_name, content, due_at, interval_ns, last_sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.Channel, []byte(msg.Content), msg.DueAt, int64(msg.Interval), msg.LastSentAt, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delayed message: %w", err)
	}
	return nil
}

// ClaimDue returns up to limit messages due at or before now, ordered by due
// time. Claiming assumes a single dispatcher per table; concurrent
// dispatchers would double-deliver.
func (s *PostgresStorage) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*DelayedMessage, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, channel_name, content, due_at, interval_ns, last_sent_at, created_at
		FROM delayed_messages
		WHERE due_at <= $1
		ORDER BY due_at
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query due messages: %w", err)
	}
	defer rows.Close()

	var due []*DelayedMessage
	for rows.Next() {
		var (
			msg        DelayedMessage
			intervalNS int64
			content    []byte
		)
		if err := rows.Scan(&msg.ID, &msg.Channel, &content, &msg.DueAt, &intervalNS, &msg.LastSentAt, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan due message: %w", err)
		}
		msg.Content = content
		msg.Interval = time.Duration(intervalNS)
		due = append(due, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due messages: %w", err)
	}
	return due, nil
}

// Reschedule moves a message to a new due time and records when it was last sent.
func (s *PostgresStorage) Reschedule(ctx context.Context, id uuid.UUID, dueAt, lastSentAt time.Time) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE delayed_messages SET due_at = $2, last_sent_at = $3 WHERE id = $1`,
		id, dueAt, lastSentAt,
	)
	if err != nil {
		return fmt.Errorf("reschedule delayed message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	return nil
}

// DeleteMessage removes a fired message.
func (s *PostgresStorage) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q(ctx).Exec(ctx, `DELETE FROM delayed_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete delayed message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	return nil
}

// CountPending reports the number of stored messages.
func (s *PostgresStorage) CountPending(ctx context.Context) (int, error) {
	rows, err := s.q(ctx).Query(ctx, `SELECT count(*) FROM delayed_messages`)
	if err != nil {
		return 0, fmt.Errorf("count delayed messages: %w", err)
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("scan count: %w", err)
		}
	}
	return count, rows.Err()
}
