package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rpattn/lobbyxml/internal/archive"
	"github.com/rpattn/lobbyxml/internal/document"
	"github.com/rpattn/lobbyxml/internal/domain"
	"github.com/rpattn/lobbyxml/internal/flatfile"
	"github.com/rpattn/lobbyxml/internal/flatten"
	"github.com/rpattn/lobbyxml/internal/metrics"
	"github.com/rpattn/lobbyxml/internal/repository"
)

// Options configures a Service.
type Options struct {
	MaxParseDuration time.Duration
	GroupPolicy      flatten.GroupPolicy
	OnError          Action
}

// Service drives a run: documents are flattened into the run directory's
// streams, then each stream is bulk loaded under the run stamp.
type Service struct {
	flattener *flatten.Flattener
	maxParse  time.Duration
	onError   Action
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewService creates a new ingestion service. m may be nil.
func NewService(opts Options, m *metrics.Metrics, logger zerolog.Logger) *Service {
	onError := opts.OnError
	if onError == "" {
		onError = ActionSkip
	}
	return &Service{
		flattener: flatten.NewFlattener(opts.GroupPolicy),
		maxParse:  opts.MaxParseDuration,
		onError:   onError,
		metrics:   m,
		logger:    logger,
	}
}

// DocumentSummary reports one source document.
type DocumentSummary struct {
	Name          string `json:"name"`
	Filings       int    `json:"filings"`
	Lobbyists     int    `json:"lobbyists"`
	Contributions int    `json:"contributions"`
	Warnings      int    `json:"warnings"`
	Err           error  `json:"-"`
}

// Summary is the run report.
type Summary struct {
	RunID        uuid.UUID         `json:"runId"`
	Stamp        time.Time         `json:"stamp"`
	LastFilingID int64             `json:"lastFilingId"`
	Documents    []DocumentSummary `json:"documents"`
	Loads        []LoadResult      `json:"loads"`
	LoadErrors   []error           `json:"-"`
}

// Failed reports whether any document was rejected or any stream rolled back.
func (s Summary) Failed() bool {
	if len(s.LoadErrors) > 0 {
		return true
	}
	for _, doc := range s.Documents {
		if doc.Err != nil {
			return true
		}
	}
	return false
}

// Log writes the run report, naming every rejected document and skipped line.
func (s Summary) Log(logger zerolog.Logger) {
	logger = logger.With().Str("run_id", s.RunID.String()).Logger()

	for _, doc := range s.Documents {
		if doc.Err != nil {
			logger.Error().Str("document", doc.Name).Err(doc.Err).Msg("document rejected")
			continue
		}
		logger.Info().
			Str("document", doc.Name).
			Int("filings", doc.Filings).
			Int("lobbyists", doc.Lobbyists).
			Int("contributions", doc.Contributions).
			Int("warnings", doc.Warnings).
			Msg("document flattened")
	}

	for _, load := range s.Loads {
		for _, skipped := range load.Skipped {
			logger.Warn().
				Str("relation", load.Relation).
				Int("line", skipped.Line).
				Str("reason", skipped.Reason).
				Msg("line skipped")
		}
		logger.Info().
			Str("relation", load.Relation).
			Int("read", load.Read).
			Int("inserted", load.Inserted).
			Int("skipped", len(load.Skipped)).
			Bool("committed", load.Committed).
			Msg("relation loaded")
	}
	for _, err := range s.LoadErrors {
		logger.Error().Err(err).Msg("stream aborted")
	}

	logger.Info().
		Int("documents", len(s.Documents)).
		Int64("last_filing_id", s.LastFilingID).
		Bool("failed", s.Failed()).
		Msg("run finished")
}

// Run ensures the schema, flattens every document in paths into run's
// directory and loads the resulting streams.
func (s *Service) Run(ctx context.Context, repo repository.RecordRepository, run archive.Run, paths []string) (Summary, error) {
	summary := Summary{RunID: run.ID, Stamp: run.StartedAt}

	if err := repo.EnsureSchema(ctx); err != nil {
		return summary, fmt.Errorf("failed to ensure schema: %w", err)
	}

	docs, last, err := s.Flatten(ctx, run, paths)
	summary.Documents = docs
	summary.LastFilingID = last
	if err != nil {
		return summary, err
	}

	loads, loadErrs, err := s.Load(ctx, repo, run)
	summary.Loads = loads
	summary.LoadErrors = loadErrs
	return summary, err
}

// Flatten parses each document in order and appends its records to the run's
// streams. Filing identifiers are contiguous across the documents that were
// kept; a rejected document consumes none. The returned error is reserved for
// failures that stop the run, such as a stream that cannot be written.
func (s *Service) Flatten(ctx context.Context, run archive.Run, paths []string) ([]DocumentSummary, int64, error) {
	streams, err := flatfile.CreateStreams(run.Dir)
	if err != nil {
		return nil, 0, err
	}

	var (
		counter   flatten.Counter
		summaries []DocumentSummary
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			_ = streams.Close()
			return summaries, counter.Last(), err
		}

		summary, err := s.flattenDocument(ctx, path, &counter, streams)
		if err != nil {
			_ = streams.Close()
			return summaries, counter.Last(), err
		}
		summaries = append(summaries, summary)

		if summary.Err != nil {
			s.observeDocument("rejected")
			s.logger.Error().Str("document", summary.Name).Err(summary.Err).Msg("document rejected")
			entry := domain.RejectEntry{Stream: domain.RejectStreamDocuments, Reason: summary.Err.Error(), Raw: summary.Name}
			if err := streams.Reject(entry); err != nil {
				_ = streams.Close()
				return summaries, counter.Last(), err
			}
			continue
		}
		s.observeDocument("flattened")
	}

	if err := streams.Close(); err != nil {
		return summaries, counter.Last(), err
	}
	return summaries, counter.Last(), nil
}

// flattenDocument reports per-document problems in DocumentSummary.Err and
// returns an error only when the streams themselves fail.
func (s *Service) flattenDocument(ctx context.Context, path string, counter *flatten.Counter, streams *flatfile.Streams) (DocumentSummary, error) {
	name := filepath.Base(path)
	summary := DocumentSummary{Name: name}
	logger := s.logger.With().Str("document", name).Logger()

	doc, err := s.parse(ctx, path, name)
	if err != nil {
		summary.Err = err
		return summary, nil
	}

	trial := *counter
	result, err := s.flattener.Flatten(doc, &trial)
	if err != nil {
		summary.Err = err
		return summary, nil
	}
	for _, warning := range result.Warnings {
		logger.Warn().Err(warning).Msg("malformed group skipped")
	}

	for _, filing := range result.Filings {
		if err := streams.WriteFiling(filing); err != nil {
			return summary, err
		}
	}
	for _, lobbyist := range result.Lobbyists {
		if err := streams.WriteLobbyist(lobbyist); err != nil {
			return summary, err
		}
	}
	for _, contribution := range result.Contributions {
		if err := streams.WriteContribution(contribution); err != nil {
			return summary, err
		}
	}
	*counter = trial

	summary.Filings = len(result.Filings)
	summary.Lobbyists = len(result.Lobbyists)
	summary.Contributions = len(result.Contributions)
	summary.Warnings = len(result.Warnings)

	if s.metrics != nil {
		s.metrics.RecordsTotal.WithLabelValues(domain.FilingRelation.Name).Add(float64(summary.Filings))
		s.metrics.RecordsTotal.WithLabelValues(domain.LobbyistRelation.Name).Add(float64(summary.Lobbyists))
		s.metrics.RecordsTotal.WithLabelValues(domain.ContributionRelation.Name).Add(float64(summary.Contributions))
	}

	logger.Debug().
		Int("filings", summary.Filings).
		Int64("last_filing_id", counter.Last()).
		Msg("document flattened")
	return summary, nil
}

func (s *Service) parse(ctx context.Context, path, name string) (*document.Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer file.Close()

	parseCtx := ctx
	if s.maxParse > 0 {
		var cancel context.CancelFunc
		parseCtx, cancel = context.WithTimeout(ctx, s.maxParse)
		defer cancel()
	}

	doc, err := document.Parse(parseCtx, name, file)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("parse exceeded %s: %w", s.maxParse, err)
		}
		return nil, err
	}
	return doc, nil
}

// Load bulk loads the filing, lobbyist and contribution streams of run, each
// in its own transaction stamped with the run's start time. A stream that
// aborts is reported in the returned slice of errors and the remaining streams
// still load; the returned error is reserved for cancellation and failures of
// the rejects stream.
func (s *Service) Load(ctx context.Context, repo repository.RecordRepository, run archive.Run) ([]LoadResult, []error, error) {
	rejects, err := flatfile.OpenAppend(run.Path(domain.RejectsStream))
	if err != nil {
		return nil, nil, err
	}
	defer rejects.Close()

	loader := NewLoader(repo, s.onError, func(entry domain.RejectEntry) error {
		return rejects.Append(entry.Fields())
	}, s.logger)

	var (
		results  []LoadResult
		failures []error
	)
	for _, rel := range domain.Relations() {
		result, err := loader.Load(ctx, rel, run.Path(rel.Stream), run.StartedAt)
		results = append(results, result)

		if s.metrics != nil {
			s.metrics.RowsLoaded.WithLabelValues(rel.Name).Add(float64(result.Inserted))
			s.metrics.LinesSkipped.WithLabelValues(rel.Name).Add(float64(len(result.Skipped)))
		}
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return results, failures, ctxErr
		}

		var lineErr *LineError
		if errors.As(err, &lineErr) {
			if s.metrics != nil {
				s.metrics.StreamsAborted.WithLabelValues(rel.Name).Inc()
			}
			if rejectErr := rejects.Append(lineErr.Reject().Fields()); rejectErr != nil {
				return results, failures, rejectErr
			}
		}
		failures = append(failures, err)
	}

	if err := rejects.Close(); err != nil {
		return results, failures, err
	}
	return results, failures, nil
}

func (s *Service) observeDocument(outcome string) {
	if s.metrics != nil {
		s.metrics.DocumentsTotal.WithLabelValues(outcome).Inc()
	}
}
