package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tasklist/internal/logger"
	"tasklist/internal/notifier"
	"tasklist/internal/storage"
)

const defaultSession = "default"

// Options - настройки HTTP-слоя
type Options struct {
	SessionHeader  string
	AllowedOrigins []string
	MetricsEnabled bool
	// KeepAlive - период SSE-комментариев, 0 - 15 секунд
	KeepAlive time.Duration
}

func NewRouter(sessions storage.Storage, n *notifier.Notifier, opts Options) *chi.Mux {
	if opts.SessionHeader == "" {
		opts.SessionHeader = "X-Session-ID"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}

	h := &TaskHandler{
		sessions:      sessions,
		notifier:      n,
		sessionHeader: opts.SessionHeader,
		keepAlive:     opts.KeepAlive,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Trace-ID", opts.SessionHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.GetStats)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/", h.AddTask)
			r.Get("/events", h.SubscribeToTasks)
			r.Post("/clear-completed", h.ClearCompleted)
			r.Post("/{taskID}/toggle", h.ToggleTask)
			r.Delete("/{taskID}", h.DeleteTask)
		})
	})

	return r
}

// Server - обертка над http.Server
type Server struct {
	httpServer *http.Server
}

func NewServer(addr string, handler http.Handler) *Server {
	// контекст запросов отменяется при Shutdown, иначе SSE-подписчики держат его бесконечно
	baseCtx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancel)
	return &Server{httpServer: srv}
}

// Start блокируется до остановки сервера
func (s *Server) Start(ctx context.Context) error {
	logger.Info(ctx, "Starting HTTP server", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not start server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	logger.Info(ctx, "Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}
