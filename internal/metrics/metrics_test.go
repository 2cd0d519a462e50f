package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/defects/internal/domain"
)

func TestObserveTransition(t *testing.T) {
	before := testutil.ToFloat64(defectTransitions.WithLabelValues("review", "closed"))

	ObserveTransition(domain.DefectStatusReview, domain.DefectStatusClosed)

	after := testutil.ToFloat64(defectTransitions.WithLabelValues("review", "closed"))
	assert.Equal(t, before+1, after)
}

func TestHandler(t *testing.T) {
	ObserveRequest(http.MethodGet, "/api/v1/defects", http.StatusOK, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `defects_http_requests_total{method="GET",route="/api/v1/defects",status="200"}`)
}
