package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNarrativeFallbacks(t *testing.T) {
	before := testutil.ToFloat64(NarrativeFallbacks.WithLabelValues("timeout"))
	NarrativeFallbacks.WithLabelValues("timeout").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(NarrativeFallbacks.WithLabelValues("timeout")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	DigestsBuilt.WithLabelValues("fallback").Inc()
	NarrativeFallbacks.WithLabelValues("llm_error").Inc()

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "teamdigest_digests_built_total")
	assert.Contains(t, rr.Body.String(), "teamdigest_narrative_fallbacks_total")
}
