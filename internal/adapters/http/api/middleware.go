package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/okian/convtrack/pkg/metrics"
)

// unmatchedRoute labels requests no route matched, which keeps scanners
// probing random paths from inflating label cardinality.
const unmatchedRoute = "unmatched"

// requestMetrics records count and latency per route pattern. It runs
// outside the rate limiter so rejected beacons are counted too.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		endpoint := routeLabel(r)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, float64(time.Since(start).Milliseconds()))
	})
}

// routeLabel names the matched route the way the pre-chi labels did:
// "/events" becomes "events".
func routeLabel(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return unmatchedRoute
	}
	pattern := strings.Trim(rc.RoutePattern(), "/")
	if pattern == "" {
		return unmatchedRoute
	}
	return pattern
}
