package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.DocumentsTotal.WithLabelValues("flattened").Add(2)
	m.RowsLoaded.WithLabelValues("contrib").Add(5)
	m.ObserveRun(time.Unix(1218963930, 0), 3*time.Second)

	path := filepath.Join(t.TempDir(), "lobbyxml.prom")
	require.NoError(t, m.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)
	require.True(t, strings.Contains(text, `lobbyxml_documents_total{outcome="flattened"} 2`), text)
	require.True(t, strings.Contains(text, `lobbyxml_rows_loaded_total{relation="contrib"} 5`), text)
	require.True(t, strings.Contains(text, "lobbyxml_run_duration_seconds 3"), text)
}

func TestRegistryIsPrivate(t *testing.T) {
	first := New()
	second := New()

	first.LinesSkipped.WithLabelValues("filing").Inc()
	require.Equal(t, float64(1), testutil.ToFloat64(first.LinesSkipped.WithLabelValues("filing")))
	require.Equal(t, float64(0), testutil.ToFloat64(second.LinesSkipped.WithLabelValues("filing")))

	count, err := testutil.GatherAndCount(first.Registry(), "lobbyxml_lines_skipped_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
