package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/rpattn/lobbyxml/internal/domain"
	"github.com/rpattn/lobbyxml/internal/flatfile"
	"github.com/rpattn/lobbyxml/internal/repository"
)

// Action tells the loader what to do with a line it cannot insert.
type Action string

const (
	// ActionSkip logs and rejects the line; the stream's transaction still commits.
	ActionSkip Action = "skip"
	// ActionAbort rolls the stream's transaction back and reports the line.
	ActionAbort Action = "abort"
)

// ParseAction validates a configured load policy.
func ParseAction(value string) (Action, error) {
	switch Action(value) {
	case ActionSkip, ActionAbort:
		return Action(value), nil
	case "":
		return ActionSkip, nil
	default:
		return "", fmt.Errorf("unknown load policy %q", value)
	}
}

// LineError identifies the flat-file line that stopped a stream.
type LineError struct {
	Stream string
	Line   int
	Raw    string
	Err    error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("stream %s line %d: %v", e.Stream, e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Reject converts the error into a reject entry.
func (e *LineError) Reject() domain.RejectEntry {
	return domain.RejectEntry{Stream: e.Stream, Line: e.Line, Reason: e.Err.Error(), Raw: e.Raw}
}

// LoadResult reports one stream's load.
type LoadResult struct {
	Relation  string               `json:"relation"`
	Read      int                  `json:"read"`
	Inserted  int                  `json:"inserted"`
	Skipped   []domain.RejectEntry `json:"skipped,omitempty"`
	Committed bool                 `json:"committed"`
}

// RejectSink receives lines the loader skipped.
type RejectSink func(domain.RejectEntry) error

// Loader moves one flat-file stream into its relation.
type Loader struct {
	repo    repository.RecordRepository
	onError Action
	reject  RejectSink
	logger  zerolog.Logger
}

// NewLoader creates a loader. reject may be nil.
func NewLoader(repo repository.RecordRepository, onError Action, reject RejectSink, logger zerolog.Logger) *Loader {
	if onError == "" {
		onError = ActionSkip
	}
	return &Loader{repo: repo, onError: onError, reject: reject, logger: logger}
}

// Load reads every line of the artifact at path and inserts it into rel inside
// a single transaction, stamping each row with stamp. The transaction commits
// only after every line has been attempted.
func (l *Loader) Load(ctx context.Context, rel domain.Relation, path string, stamp time.Time) (LoadResult, error) {
	result := LoadResult{Relation: rel.Name}
	logger := l.logger.With().Str("relation", rel.Name).Str("stream", rel.Stream).Logger()

	reader, err := flatfile.Open(path)
	if err != nil {
		return result, err
	}
	defer reader.Close()

	var pending []domain.RejectEntry
	err = l.repo.WithTx(ctx, func(tx repository.RecordTx) error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			record, err := reader.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			result.Read++

			lineErr := record.Err
			if lineErr == nil {
				var values []any
				values, lineErr = rel.Convert(record.Fields)
				if lineErr == nil {
					lineErr = tx.Insert(ctx, rel, values, stamp)
				}
			}
			if lineErr == nil {
				result.Inserted++
				continue
			}

			if l.onError == ActionAbort {
				return &LineError{Stream: rel.Stream, Line: record.Line, Raw: record.Raw, Err: lineErr}
			}

			entry := domain.RejectEntry{Stream: rel.Stream, Line: record.Line, Reason: lineErr.Error(), Raw: record.Raw}
			logger.Warn().Int("line", record.Line).Err(lineErr).Msg("skipping malformed line")
			pending = append(pending, entry)
		}
	})
	if err != nil {
		result.Inserted = 0
		logger.Error().Err(err).Int("read", result.Read).Msg("stream rolled back")
		return result, fmt.Errorf("failed to load %s: %w", rel.Name, err)
	}

	result.Committed = true
	result.Skipped = pending
	if l.reject != nil {
		for _, entry := range pending {
			if err := l.reject(entry); err != nil {
				logger.Error().Err(err).Int("line", entry.Line).Msg("failed to record reject")
			}
		}
	}

	logger.Info().
		Int("read", result.Read).
		Int("inserted", result.Inserted).
		Int("skipped", len(result.Skipped)).
		Msg("stream committed")

	return result, nil
}
