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
)

func TestObserveItem(t *testing.T) {
	before := testutil.ToFloat64(itemsProcessedTotal.WithLabelValues(OutcomeNotFound))
	ObserveItem(OutcomeNotFound)
	ObserveItem(OutcomeNotFound)

	assert.Equal(t, before+2, testutil.ToFloat64(itemsProcessedTotal.WithLabelValues(OutcomeNotFound)))
}

func TestSetProviderHealth(t *testing.T) {
	SetProviderHealth("ViaCEP", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(providerHealthy.WithLabelValues("ViaCEP")))

	SetProviderHealth("ViaCEP", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(providerHealthy.WithLabelValues("ViaCEP")))
}

func TestJobCounters(t *testing.T) {
	created := testutil.ToFloat64(jobsCreatedTotal)
	finished := testutil.ToFloat64(jobsFinishedTotal)

	ObserveJobCreated()
	ObserveJobFinished()

	assert.Equal(t, created+1, testutil.ToFloat64(jobsCreatedTotal))
	assert.Equal(t, finished+1, testutil.ToFloat64(jobsFinishedTotal))
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveProviderRequest("ViaCEP", 120*time.Millisecond)
	ObserveRateLimitWait(350 * time.Millisecond)
	ObserveHTTPRequest(http.MethodGet, "/api/v1/crawls/:crawl_id", http.StatusOK, 10*time.Millisecond)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "crawler_provider_request_duration_seconds")
	assert.Contains(t, string(body), "crawler_rate_limit_wait_seconds")
	assert.Contains(t, string(body), `http_requests_total{code="200",method="GET"}`)
}
