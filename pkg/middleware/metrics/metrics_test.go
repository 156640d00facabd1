package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeydtaylor/steeze-connect/pkg/connectivity"
	"github.com/joeydtaylor/steeze-connect/pkg/middleware/auth"
)

func TestObserveStep(t *testing.T) {
	step := connectivity.Step("test step")

	ObserveStep(step, nil, 20*time.Millisecond)
	ObserveStep(step, errors.New("dial tcp: refused"), time.Millisecond)
	ObserveStep(step, &connectivity.StatusError{StatusCode: 404}, time.Millisecond)
	ObserveStep(step, fmt.Errorf("wrapped: %w", context.DeadlineExceeded), time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(destinationSteps.WithLabelValues(string(step), "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(destinationSteps.WithLabelValues(string(step), "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(destinationSteps.WithLabelValues(string(step), "status")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(destinationSteps.WithLabelValues(string(step), "canceled")), 0)
}

func TestCollect_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Collect(nil))
	r.Get("/erp/*", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {})

	for _, p := range []string{"/erp/a/1", "/erp/b/2", "/metrics"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.InDelta(t, 2, testutil.ToFloat64(totalHttpRequestsToUri.WithLabelValues("202", "/erp/*", "GET")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(totalHttpRequestsToUri.WithLabelValues("200", "/metrics", "GET")), 0)
}

func TestCollect_CountsTenant(t *testing.T) {
	a, err := auth.New(auth.Config{DevBypass: true})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(a.Middleware(), Collect(a))
	r.Get("/t", func(http.ResponseWriter, *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set("X-Dev-User", "alice")
	req.Header.Set("X-Dev-Tenant", "zone-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.InDelta(t, 1, testutil.ToFloat64(totalHttpRequestsFromTenant.WithLabelValues("zone-42")), 0)
}
