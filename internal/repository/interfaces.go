package repository

import (
	"context"
	"time"

	"github.com/rpattn/lobbyxml/internal/domain"
)

// RecordRepository persists flattened records into their relations.
type RecordRepository interface {
	// EnsureSchema creates missing relations and validates their column order.
	EnsureSchema(ctx context.Context) error
	// WithTx runs fn in one transaction; fn's error rolls everything back.
	WithTx(ctx context.Context, fn func(RecordTx) error) error
	// Count returns the rows of rel, restricted to one run stamp when stamp is non-zero.
	Count(ctx context.Context, rel domain.Relation, stamp time.Time) (int64, error)
}

// RecordTx inserts rows inside a RecordRepository transaction. A failed Insert
// leaves the transaction usable so a caller may skip the row and continue.
type RecordTx interface {
	Insert(ctx context.Context, rel domain.Relation, values []any, stamp time.Time) error
}
