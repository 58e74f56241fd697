package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tasklist/internal/logger"
)

var httpRequestCount = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "todoapp_http_requests_total",
		Help: "Total number of HTTP requests by route and status",
	},
	[]string{"method", "route", "status"},
)

// LoggerMiddleware кладет в контекст логгер с trace_id и пишет начало/конец запроса
func LoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}
		w.Header().Set("X-Trace-ID", traceID)

		ctx := logger.WithContext(r.Context(), "trace_id", traceID)
		httpCtx := logger.WithContext(ctx,
			"http_method", r.Method,
			"http_path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startTime := time.Now()

		logger.Debug(httpCtx, "Request started")

		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequestCount.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()

		logger.Info(httpCtx, "Request finished",
			"status_code", status,
			"bytes_written", ww.BytesWritten(),
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
	})
}
