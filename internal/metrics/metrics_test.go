package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IngestionItem("remoteok", "ok")
	m.Enqueue("enqueued")
	m.WorkerJob("completed", 1)
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.IngestionItem("remoteok", "ok")
	m.IngestionItem("remoteok", "ok")
	m.IngestionItem("remoteok", "skipped")
	m.Enqueue("unavailable")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestionItemsTotal.WithLabelValues("remoteok", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnqueueTotal.WithLabelValues("unavailable")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `ingestion_items_total{source="remoteok",status="skipped"} 1`))
}
