// metrics.go — Prometheus HTTP метрики Media Broker.
// Регистрирует метрики: mb_http_requests_total, mb_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mb_http_requests_total",
			Help: "Общее количество HTTP-запросов к Media Broker",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mb_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Media Broker в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// knownPaths — статические маршруты, попадающие в лейбл как есть.
var knownPaths = map[string]struct{}{
	"/":                    {},
	"/auth/login":          {},
	"/authz/media":         {},
	"/media/upload":        {},
	"/media/list":          {},
	"/maintenance/orphans": {},
	"/health/live":         {},
	"/health/ready":        {},
	"/metrics":             {},
}

// normalizePath ограничивает кардинальность лейбла path: неизвестные пути → other.
func normalizePath(path string) string {
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "other"
}
