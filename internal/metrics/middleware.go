package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	regionAll     = "all"
	regionUnknown = "unknown"
	routeNone     = "unmatched"
)

// HTTPMiddleware records request counts and latency by chi route pattern and
// requested region. Only configured regions become label values. Error
// counts come from the API's error responses.
func HTTPMiddleware(regions []string) func(http.Handler) http.Handler {
	known := make(map[string]bool, len(regions))
	for _, r := range regions {
		known[strings.ToUpper(r)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := Global()
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routeLabel(r)
			region := regionLabel(r, known)

			m.APIRequestsTotal.WithLabelValues(r.Method, route, region, strconv.Itoa(status)).Inc()
			m.APIRequestDurationSeconds.WithLabelValues(r.Method, route, region).Observe(time.Since(start).Seconds())
		})
	}
}

// routeLabel is the matched route pattern; unrouted paths share one label
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return routeNone
}

func regionLabel(r *http.Request, known map[string]bool) string {
	region := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("region")))
	switch {
	case region == "":
		return regionAll
	case known[region]:
		return region
	default:
		return regionUnknown
	}
}
