package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rpattn/lobbyxml/internal/archive"
	"github.com/rpattn/lobbyxml/internal/fetch"
	"github.com/rpattn/lobbyxml/internal/ingestion"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Download the published archives, flatten them and load the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			started := time.Now()

			run, err := archive.NewRun(a.cfg.Archive.DataDir, started)
			if err != nil {
				return err
			}
			a.logger.Info().Str("run_id", run.ID.String()).Str("dir", run.Dir).Msg("run started")

			fetcher := fetch.NewFetcher(a.cfg.Fetch.Timeout, a.logger)
			fetched, err := fetcher.Fetch(ctx, a.cfg.Fetch.URL, run.Dir)
			if err != nil {
				return fmt.Errorf("failed to fetch archives: %w", err)
			}
			skipped := make([]string, 0, len(fetched.Failures))
			for _, failure := range fetched.Failures {
				skipped = append(skipped, failure.Archive)
			}
			a.logger.Info().
				Int("archives", len(fetched.Archives)).
				Int("xml_files", len(fetched.XMLFiles)).
				Strs("skipped", skipped).
				Msg("fetch complete")

			paths, err := archive.XMLFiles(run.Dir)
			if err != nil {
				return err
			}
			return a.ingest(cmd, run, paths, started)
		},
	}
}

func newIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <xml file or dir>...",
		Short: "Flatten and load local disclosure documents into a new run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()

			paths, err := archive.CollectXML(args)
			if err != nil {
				return err
			}
			run, err := archive.NewRun(a.cfg.Archive.DataDir, started)
			if err != nil {
				return err
			}
			a.logger.Info().Str("run_id", run.ID.String()).Str("dir", run.Dir).Int("documents", len(paths)).Msg("run started")

			return a.ingest(cmd, run, paths, started)
		},
	}
}

func (a *app) ingest(cmd *cobra.Command, run archive.Run, paths []string, started time.Time) error {
	ctx := cmd.Context()

	service, err := a.service()
	if err != nil {
		return err
	}
	repo, closeStore, err := a.openStore(ctx, &run)
	if err != nil {
		return err
	}
	defer closeStore()

	summary, err := service.Run(ctx, repo, run, paths)
	return a.finish(summary, started, err)
}

func newLoadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load <run dir>",
		Short: "Load the streams of an existing run directory under a fresh stamp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			started := time.Now()

			run, err := archive.Existing(args[0], started)
			if err != nil {
				return err
			}
			service, err := a.service()
			if err != nil {
				return err
			}
			repo, closeStore, err := a.openStore(ctx, &run)
			if err != nil {
				return err
			}
			defer closeStore()

			summary := ingestion.Summary{RunID: run.ID, Stamp: run.StartedAt}
			if err := repo.EnsureSchema(ctx); err != nil {
				return a.finish(summary, started, fmt.Errorf("failed to ensure schema: %w", err))
			}
			loads, failures, err := service.Load(ctx, repo, run)
			summary.Loads = loads
			summary.LoadErrors = failures
			return a.finish(summary, started, err)
		},
	}
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the filing, lobbyist and contrib tables if they are absent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repo, closeStore, err := a.openStore(ctx, nil)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := repo.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("failed to ensure schema: %w", err)
			}
			a.logger.Info().Str("driver", a.cfg.Database.Driver).Msg("schema ready")
			return nil
		},
	}
}
