//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rpattn/lobbyxml/internal/db"
	"github.com/rpattn/lobbyxml/internal/domain"
)

func newPostgresRepository(t *testing.T) RecordRepository {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("lobbyxml"),
		tcpostgres.WithUsername("lobbyxml"),
		tcpostgres.WithPassword("lobbyxml"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	conn, err := db.NewConnectionFromDSN(ctx, dsn, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(conn.Close)

	return NewPostgresRecordRepository(conn, zerolog.Nop())
}

func TestPostgresRecordRepository(t *testing.T) {
	ctx := context.Background()
	repo := newPostgresRepository(t)
	stamp := time.Date(2008, time.August, 17, 9, 5, 30, 0, time.UTC)

	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.EnsureSchema(ctx), "schema creation must be repeatable")

	good, err := domain.ContributionRelation.Convert(domain.Contribution{
		FilingID: 1, SourceDocument: "a.xml", SoprFilingID: "F1", Amount: "1200.50",
	}.Fields())
	require.NoError(t, err)
	nullAmount, err := domain.ContributionRelation.Convert(domain.Contribution{
		FilingID: 1, SourceDocument: "a.xml", SoprFilingID: "F1", Amount: domain.Placeholder,
	}.Fields())
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(tx RecordTx) error {
		require.NoError(t, tx.Insert(ctx, domain.ContributionRelation, good, stamp))

		// A failing row must not poison the rest of the transaction.
		require.Error(t, tx.Insert(ctx, domain.ContributionRelation, good[:3], stamp))

		return tx.Insert(ctx, domain.ContributionRelation, nullAmount, stamp)
	})
	require.NoError(t, err)

	count, err := repo.Count(ctx, domain.ContributionRelation, stamp)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	total, err := repo.Count(ctx, domain.ContributionRelation, time.Time{})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
}

func TestPostgresRecordRepositoryRollback(t *testing.T) {
	ctx := context.Background()
	repo := newPostgresRepository(t)
	require.NoError(t, repo.EnsureSchema(ctx))

	values, err := domain.LobbyistRelation.Convert(domain.Lobbyist{FilingID: 1, SourceDocument: "a.xml", SoprFilingID: "F1", LobbyistName: "Jane Roe"}.Fields())
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(tx RecordTx) error {
		require.NoError(t, tx.Insert(ctx, domain.LobbyistRelation, values, time.Now()))
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)

	count, err := repo.Count(ctx, domain.LobbyistRelation, time.Time{})
	require.NoError(t, err)
	require.Zero(t, count)
}
