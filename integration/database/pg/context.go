package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// txContextKey is an unexported key type to avoid context key collisions.
type txContextKey struct{}

// WithTx returns a context carrying the transaction. Delay storage
// operations running under this context join the transaction instead of
// hitting the pool directly, so scheduling a message can commit or roll back
// together with the caller's own writes. A nil tx returns the context
// unchanged.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext extracts a transaction previously stored with WithTx. The
// second return value reports whether one was present.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txContextKey{}).(pgx.Tx)
	return tx, ok
}
