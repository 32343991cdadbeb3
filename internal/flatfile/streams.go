package flatfile

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rpattn/lobbyxml/internal/domain"
)

// Streams owns the writers of one run directory.
type Streams struct {
	Filings       *Writer
	Lobbyists     *Writer
	Contributions *Writer
	Rejects       *Writer
}

// CreateStreams opens the filing, lobbyist, contribution and reject streams in dir.
func CreateStreams(dir string) (*Streams, error) {
	s := &Streams{}
	targets := []struct {
		dst  **Writer
		name string
	}{
		{&s.Filings, domain.FilingRelation.Stream},
		{&s.Lobbyists, domain.LobbyistRelation.Stream},
		{&s.Contributions, domain.ContributionRelation.Stream},
		{&s.Rejects, domain.RejectsStream},
	}
	for _, target := range targets {
		w, err := Create(filepath.Join(dir, target.name))
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		*target.dst = w
	}
	return s, nil
}

// WriteFiling appends a filing record.
func (s *Streams) WriteFiling(f domain.Filing) error {
	return s.Filings.Append(f.Fields())
}

// WriteLobbyist appends a lobbyist record.
func (s *Streams) WriteLobbyist(l domain.Lobbyist) error {
	return s.Lobbyists.Append(l.Fields())
}

// WriteContribution appends a contribution record.
func (s *Streams) WriteContribution(c domain.Contribution) error {
	return s.Contributions.Append(c.Fields())
}

// Reject appends an entry to the rejects stream.
func (s *Streams) Reject(entry domain.RejectEntry) error {
	return s.Rejects.Append(entry.Fields())
}

// Close closes every open writer and reports all failures.
func (s *Streams) Close() error {
	var errs []error
	for _, w := range []*Writer{s.Filings, s.Lobbyists, s.Contributions, s.Rejects} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close streams: %w", errors.Join(errs...))
	}
	return nil
}
