package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ColumnKind describes how a flat-file field is stored in its relation.
type ColumnKind string

const (
	ColumnText    ColumnKind = "text"
	ColumnInteger ColumnKind = "integer"
	ColumnNumeric ColumnKind = "numeric"
)

// InsertDatetimeColumn is stamped by the loader on every row; it never appears in a flat file.
const InsertDatetimeColumn = "insert_datetime"

// Column is a single relation column.
type Column struct {
	Name string
	Kind ColumnKind
}

// Decimal is a validated numeric literal kept as text so no precision is lost
// on its way into the store.
type Decimal string

// Relation ties a target table to the flat-file stream that feeds it.
type Relation struct {
	Name    string
	Stream  string
	Columns []Column
}

var (
	FilingRelation = Relation{
		Name:   "filing",
		Stream: "filings.txt",
		Columns: []Column{
			{Name: "filing_id", Kind: ColumnInteger},
			{Name: "source_document", Kind: ColumnText},
			{Name: "sopr_filing_id", Kind: ColumnText},
			{Name: "year", Kind: ColumnText},
			{Name: "received", Kind: ColumnText},
			{Name: "type", Kind: ColumnText},
			{Name: "period", Kind: ColumnText},
			{Name: "registrant_id", Kind: ColumnText},
			{Name: "registrant_name", Kind: ColumnText},
			{Name: "registrant_address", Kind: ColumnText},
			{Name: "registrant_country", Kind: ColumnText},
		},
	}

	LobbyistRelation = Relation{
		Name:   "lobbyist",
		Stream: "lobbyists.txt",
		Columns: []Column{
			{Name: "filing_id", Kind: ColumnInteger},
			{Name: "source_document", Kind: ColumnText},
			{Name: "sopr_filing_id", Kind: ColumnText},
			{Name: "lobbyist_name", Kind: ColumnText},
		},
	}

	ContributionRelation = Relation{
		Name:   "contrib",
		Stream: "contribs.txt",
		Columns: []Column{
			{Name: "filing_id", Kind: ColumnInteger},
			{Name: "source_document", Kind: ColumnText},
			{Name: "sopr_filing_id", Kind: ColumnText},
			{Name: "contributor", Kind: ColumnText},
			{Name: "contribution_type", Kind: ColumnText},
			{Name: "payee", Kind: ColumnText},
			{Name: "honoree", Kind: ColumnText},
			{Name: "amount", Kind: ColumnNumeric},
			{Name: "contribution_date", Kind: ColumnText},
		},
	}
)

// Relations lists every target relation in load order.
func Relations() []Relation {
	return []Relation{FilingRelation, LobbyistRelation, ContributionRelation}
}

// ColumnNames returns the stored column names, insert_datetime last.
func (r Relation) ColumnNames() []string {
	names := make([]string, 0, len(r.Columns)+1)
	for _, col := range r.Columns {
		names = append(names, col.Name)
	}
	return append(names, InsertDatetimeColumn)
}

// Convert turns one flat-file line into typed insert values. Text columns keep the
// placeholder verbatim; integer and numeric columns store it, or an empty value, as NULL.
func (r Relation) Convert(fields []string) ([]any, error) {
	if len(fields) != len(r.Columns) {
		return nil, fmt.Errorf("%s: expected %d fields, got %d", r.Name, len(r.Columns), len(fields))
	}

	values := make([]any, len(fields))
	for i, raw := range fields {
		col := r.Columns[i]
		value, err := coerceColumn(col.Kind, raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", r.Name, col.Name, err)
		}
		values[i] = value
	}
	return values, nil
}

func coerceColumn(kind ColumnKind, raw string) (any, error) {
	switch kind {
	case ColumnText:
		return raw, nil
	case ColumnInteger:
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || trimmed == Placeholder {
			return nil, nil
		}
		i, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to integer", raw)
		}
		return i, nil
	case ColumnNumeric:
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || trimmed == Placeholder {
			return nil, nil
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("unable to coerce %q to numeric", raw)
		}
		return Decimal(trimmed), nil
	default:
		return nil, fmt.Errorf("unsupported column kind %s", kind)
	}
}
