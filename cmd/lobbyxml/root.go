package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rpattn/lobbyxml/internal/archive"
	"github.com/rpattn/lobbyxml/internal/config"
	"github.com/rpattn/lobbyxml/internal/db"
	"github.com/rpattn/lobbyxml/internal/flatten"
	"github.com/rpattn/lobbyxml/internal/ingestion"
	"github.com/rpattn/lobbyxml/internal/logging"
	"github.com/rpattn/lobbyxml/internal/metrics"
	"github.com/rpattn/lobbyxml/internal/repository"
)

var errRunFailed = errors.New("run finished with rejected documents or aborted streams")

// app carries what every command needs once config is loaded.
type app struct {
	v       *viper.Viper
	cfg     config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}
	var configPath string

	cmd := &cobra.Command{
		Use:           "lobbyxml",
		Short:         "Flatten Senate lobbying contribution disclosures into a relational store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, found, err := config.Load(a.v, configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.New(cfg.Log.Level, cfg.Log.Format, "lobbyxml")
			a.metrics = metrics.New()
			if found {
				a.logger.Debug().Str("file", a.v.ConfigFileUsed()).Msg("loaded config file")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", ".", "Directory holding config.yaml")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	_ = a.v.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.AddCommand(
		newRunCmd(a),
		newIngestCmd(a),
		newLoadCmd(a),
		newSchemaCmd(a),
	)
	return cmd
}

func (a *app) service() (*ingestion.Service, error) {
	policy, err := flatten.ParseGroupPolicy(a.cfg.Parse.GroupPolicy)
	if err != nil {
		return nil, err
	}
	onError, err := ingestion.ParseAction(a.cfg.Load.OnError)
	if err != nil {
		return nil, err
	}
	return ingestion.NewService(ingestion.Options{
		MaxParseDuration: a.cfg.Parse.MaxDuration,
		GroupPolicy:      policy,
		OnError:          onError,
	}, a.metrics, a.logger), nil
}

// openStore connects the configured database. For SQLite an empty path means
// contribs.db inside the run directory.
func (a *app) openStore(ctx context.Context, run *archive.Run) (repository.RecordRepository, func(), error) {
	dialect, err := db.ParseDialect(a.cfg.Database.Driver)
	if err != nil {
		return nil, nil, err
	}

	switch dialect {
	case db.DialectPostgres:
		conn, err := db.NewConnection(ctx, a.cfg.Database, a.logger)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresRecordRepository(conn, a.logger), conn.Close, nil
	default:
		path := a.cfg.Database.Path
		if path == "" {
			if run == nil {
				return nil, nil, fmt.Errorf("database.path is required outside a run")
			}
			path = run.Path("contribs.db")
		}
		store, err := db.OpenSQLite(ctx, path, a.logger)
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			if err := store.Close(); err != nil {
				a.logger.Error().Err(err).Msg("failed to close sqlite")
			}
		}
		return repository.NewSQLiteRecordRepository(store, a.logger), closer, nil
	}
}

// finish logs the report, publishes metrics and maps a failed run to an error.
func (a *app) finish(summary ingestion.Summary, started time.Time, runErr error) error {
	summary.Log(a.logger)

	if a.metrics != nil {
		a.metrics.ObserveRun(started, time.Since(started))
		if path := a.cfg.Metrics.Textfile; path != "" {
			if err := a.metrics.WriteTextfile(path); err != nil {
				a.logger.Error().Err(err).Msg("failed to publish metrics")
			}
		}
	}

	if runErr != nil {
		return runErr
	}
	if summary.Failed() {
		return errRunFailed
	}
	return nil
}
