package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/rpattn/lobbyxml/internal/db"
	"github.com/rpattn/lobbyxml/internal/domain"
)

type postgresRecordRepository struct {
	conn   *db.Connection
	logger zerolog.Logger
}

// NewPostgresRecordRepository wires a repository backed by pgxpool.
func NewPostgresRecordRepository(conn *db.Connection, logger zerolog.Logger) RecordRepository {
	return &postgresRecordRepository{conn: conn, logger: logger}
}

func (r *postgresRecordRepository) EnsureSchema(ctx context.Context) error {
	if r.conn == nil || r.conn.Pool == nil {
		return fmt.Errorf("record repository not initialized")
	}
	return db.EnsureSchema(ctx, r.conn, db.DialectPostgres, r.logger)
}

func (r *postgresRecordRepository) WithTx(ctx context.Context, fn func(RecordTx) error) error {
	if r.conn == nil || r.conn.Pool == nil {
		return fmt.Errorf("record repository not initialized")
	}
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&postgresRecordTx{tx: tx})
	})
}

func (r *postgresRecordRepository) Count(ctx context.Context, rel domain.Relation, stamp time.Time) (int64, error) {
	if r.conn == nil || r.conn.Pool == nil {
		return 0, fmt.Errorf("record repository not initialized")
	}

	var (
		count int64
		err   error
	)
	if stamp.IsZero() {
		err = r.conn.Pool.QueryRow(ctx, countStatement(rel, dollarN, false)).Scan(&count)
	} else {
		err = r.conn.Pool.QueryRow(ctx, countStatement(rel, dollarN, true), stamp).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", rel.Name, err)
	}
	return count, nil
}

type postgresRecordTx struct {
	tx pgx.Tx
}

// Insert runs inside a savepoint: PostgreSQL aborts the whole transaction on a
// failed statement, and the savepoint keeps a skipped row from doing that.
func (t *postgresRecordTx) Insert(ctx context.Context, rel domain.Relation, values []any, stamp time.Time) error {
	args := make([]any, 0, len(values)+1)
	for _, value := range values {
		if decimal, ok := value.(domain.Decimal); ok {
			var numeric pgtype.Numeric
			if err := numeric.Scan(string(decimal)); err != nil {
				return fmt.Errorf("failed to encode %s amount %q: %w", rel.Name, decimal, err)
			}
			value = numeric
		}
		args = append(args, value)
	}
	args = append(args, stamp)

	savepoint, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to open savepoint for %s: %w", rel.Name, err)
	}
	if _, err := savepoint.Exec(ctx, insertStatement(rel, dollarN), args...); err != nil {
		_ = savepoint.Rollback(ctx)
		return fmt.Errorf("failed to insert into %s: %w", rel.Name, err)
	}
	if err := savepoint.Commit(ctx); err != nil {
		return fmt.Errorf("failed to release savepoint for %s: %w", rel.Name, err)
	}
	return nil
}
