package repository

import (
	"fmt"
	"strings"

	"github.com/rpattn/lobbyxml/internal/domain"
)

// placeholderFunc renders the n-th (1-based) bind parameter of a dialect.
type placeholderFunc func(n int) string

func questionMark(int) string { return "?" }

func dollarN(n int) string { return fmt.Sprintf("$%d", n) }

// insertStatement builds the INSERT for rel with insert_datetime as the last column.
func insertStatement(rel domain.Relation, bind placeholderFunc) string {
	columns := rel.ColumnNames()
	params := make([]string, len(columns))
	for i := range columns {
		params[i] = bind(i + 1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		rel.Name,
		strings.Join(columns, ", "),
		strings.Join(params, ", "),
	)
}

func countStatement(rel domain.Relation, bind placeholderFunc, byStamp bool) string {
	if !byStamp {
		return fmt.Sprintf("SELECT COUNT(*) FROM %s", rel.Name)
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s", rel.Name, domain.InsertDatetimeColumn, bind(1))
}
