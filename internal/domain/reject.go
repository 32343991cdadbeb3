package domain

import "strconv"

// RejectStreamDocuments names the pseudo-stream used for documents that failed to parse.
const RejectStreamDocuments = "documents"

// RejectsStream is the flat file that collects every reject of a run.
const RejectsStream = "rejects.txt"

// RejectEntry captures a document or flat-file line that was skipped during a run.
type RejectEntry struct {
	Stream string `json:"stream"`
	Line   int    `json:"line,omitempty"`
	Reason string `json:"reason"`
	Raw    string `json:"raw,omitempty"`
}

// Fields returns the entry as a flat-file record.
func (e RejectEntry) Fields() []string {
	line := Placeholder
	if e.Line > 0 {
		line = strconv.Itoa(e.Line)
	}
	return []string{e.Stream, line, e.Reason, e.Raw}
}
