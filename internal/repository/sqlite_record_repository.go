package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rpattn/lobbyxml/internal/db"
	"github.com/rpattn/lobbyxml/internal/domain"
)

// SQLiteStampLayout is how insert_datetime is written to SQLite.
const SQLiteStampLayout = "2006-01-02 15:04:05"

type sqliteRecordRepository struct {
	store  *db.SQLite
	logger zerolog.Logger
}

// NewSQLiteRecordRepository wires a repository backed by a SQLite file.
func NewSQLiteRecordRepository(store *db.SQLite, logger zerolog.Logger) RecordRepository {
	return &sqliteRecordRepository{store: store, logger: logger}
}

func (r *sqliteRecordRepository) EnsureSchema(ctx context.Context) error {
	if r.store == nil {
		return fmt.Errorf("record repository not initialized")
	}
	return db.EnsureSchema(ctx, r.store, db.DialectSQLite, r.logger)
}

func (r *sqliteRecordRepository) WithTx(ctx context.Context, fn func(RecordTx) error) error {
	if r.store == nil {
		return fmt.Errorf("record repository not initialized")
	}
	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		recordTx := &sqliteRecordTx{tx: tx, statements: map[string]*sql.Stmt{}}
		defer recordTx.close()
		return fn(recordTx)
	})
}

func (r *sqliteRecordRepository) Count(ctx context.Context, rel domain.Relation, stamp time.Time) (int64, error) {
	if r.store == nil {
		return 0, fmt.Errorf("record repository not initialized")
	}

	var (
		count int64
		err   error
	)
	if stamp.IsZero() {
		err = r.store.DB.QueryRowContext(ctx, countStatement(rel, questionMark, false)).Scan(&count)
	} else {
		err = r.store.DB.QueryRowContext(ctx, countStatement(rel, questionMark, true), stamp.Format(SQLiteStampLayout)).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", rel.Name, err)
	}
	return count, nil
}

type sqliteRecordTx struct {
	tx         *sql.Tx
	statements map[string]*sql.Stmt
}

func (t *sqliteRecordTx) Insert(ctx context.Context, rel domain.Relation, values []any, stamp time.Time) error {
	stmt, ok := t.statements[rel.Name]
	if !ok {
		prepared, err := t.tx.PrepareContext(ctx, insertStatement(rel, questionMark))
		if err != nil {
			return fmt.Errorf("failed to prepare insert into %s: %w", rel.Name, err)
		}
		t.statements[rel.Name] = prepared
		stmt = prepared
	}

	args := make([]any, 0, len(values)+1)
	for _, value := range values {
		if decimal, ok := value.(domain.Decimal); ok {
			value = string(decimal)
		}
		args = append(args, value)
	}
	args = append(args, stamp.Format(SQLiteStampLayout))

	if _, err := stmt.ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", rel.Name, err)
	}
	return nil
}

func (t *sqliteRecordTx) close() {
	for _, stmt := range t.statements {
		_ = stmt.Close()
	}
}
