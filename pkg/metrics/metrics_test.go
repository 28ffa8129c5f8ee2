package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			match := true
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					match = false
				}
			}
			if match {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.ObserveFile("csv", "ok", 20*time.Millisecond)
	m.ObserveFile("", "error", time.Millisecond)
	m.AddRows("csv", RowSuccessful, 4)
	m.AddRows("csv", RowFailed, 1)
	m.AddRows("csv", RowDuplicate, 0)
	m.Categorized("rule")

	files := "statement_ingest_files_total"
	rows := "statement_ingest_rows_total"
	assert.Equal(t, 1.0, counterValue(t, m, files, map[string]string{"kind": "csv", "outcome": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, m, files, map[string]string{"kind": "unknown", "outcome": "error"}))
	assert.Equal(t, 4.0, counterValue(t, m, rows, map[string]string{"kind": "csv", "outcome": RowSuccessful}))
	assert.Equal(t, 1.0, counterValue(t, m, rows, map[string]string{"kind": "csv", "outcome": RowFailed}))
	assert.Equal(t, 0.0, counterValue(t, m, rows, map[string]string{"kind": "csv", "outcome": RowDuplicate}))
	assert.Equal(t, 1.0, counterValue(t, m, "statement_ingest_categorized_total", map[string]string{"matched_by": "rule"}))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFile("csv", "ok", time.Second)
		m.AddRows("csv", RowSuccessful, 1)
		m.Categorized("keyword")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.AddRows("pdf", RowSuccessful, 3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `statement_ingest_rows_total{kind="pdf",outcome="successful"} 3`)
}
