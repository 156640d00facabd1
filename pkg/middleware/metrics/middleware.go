package metrics

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/middleware"

	"github.com/joeydtaylor/steeze-connect/pkg/middleware/auth"
)

// Collect produces the HTTP middleware that records the counters/histogram.
// Anonymous requests are counted under an empty role and tenant.
func Collect(ca *auth.Middleware) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			startTime := time.Now()

			defer func() {
				// Skip self-scrape and any additional caller-configured paths
				if isSkipPath(r) {
					return
				}

				elapsed := time.Since(startTime)

				var u auth.User
				if ca != nil {
					u = ca.GetUser(r.Context())
				}

				code := strconv.Itoa(ww.Status())
				uri := normalizePath(r) // path only; avoid cardinality explosion
				method := r.Method

				totalHttpRequestsFromRole.WithLabelValues(u.Role.Name).Inc()
				totalHttpRequestsFromTenant.WithLabelValues(u.Tenant).Inc()
				totalHttpRequestsToUri.WithLabelValues(code, uri, method).Inc()
				totalHttpRequests.WithLabelValues(code, method).Inc()
				responseTime.Observe(elapsed.Seconds())
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
