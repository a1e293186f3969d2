package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCodingLookup(t *testing.T) {
	before := testutil.ToFloat64(codingLookupsTotal.WithLabelValues("RxNorm", LookupEmpty))
	RecordCodingLookup("RxNorm", LookupEmpty)
	assert.Equal(t, before+1, testutil.ToFloat64(codingLookupsTotal.WithLabelValues("RxNorm", LookupEmpty)))
}

func TestObserveStage_CountsErrors(t *testing.T) {
	before := testutil.ToFloat64(stageErrorsTotal.WithLabelValues("render"))

	ObserveStage("render", time.Now(), nil)
	ObserveStage("render", time.Now(), errors.New("boom"))

	assert.Equal(t, before+1, testutil.ToFloat64(stageErrorsTotal.WithLabelValues("render")))
}

func TestRecordRender(t *testing.T) {
	before := testutil.ToFloat64(macrosExpandedTotal.WithLabelValues("templated_argument"))
	RecordRender(1, 2, 0, 0, 0)
	assert.Equal(t, before+2, testutil.ToFloat64(macrosExpandedTotal.WithLabelValues("templated_argument")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	RecordFeedback(true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "nlq2sql_feedback_records_total")
}
