package server

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"tanpredict/internal/config"
	"tanpredict/internal/handler"
	"tanpredict/web"
)

// Server is the HTTP server for the route planner and prediction forms.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	srv    *http.Server
}

// New creates a new Server with all routes registered. The pipeline in deps
// must be fully trained; it is shared read-only by every request.
func New(cfg *config.Config, deps handler.Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Static files are served from the embedded FS; versioned URLs get immutable caching
	staticFS, _ := fs.Sub(web.StaticFiles, "static")
	h := handler.New(deps, staticFS, cfg, logger)

	fileServer := http.FileServer(http.FS(staticFS))
	mux.Handle("GET /static/", http.StripPrefix("/static/", staticCacheHandler(fileServer)))

	// Pages
	mux.HandleFunc("GET /", h.Home)
	mux.HandleFunc("GET /route", h.Route)
	mux.HandleFunc("GET /predict", h.Predict)
	mux.HandleFunc("POST /predict", h.Predict)
	mux.HandleFunc("GET /stops/{code}", h.StopDetail)

	// API
	mux.HandleFunc("POST /api/predict", h.APIPredict)

	s := &Server{mux: mux, logger: logger}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed mux wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return withMiddleware(s.mux, s.logger)
}

// ListenAndServe starts the HTTP server. It returns http.ErrServerClosed
// after Shutdown, including a Shutdown that happened before the call.
func (s *Server) ListenAndServe() error {
	s.logger.Info("server starting", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
// It is safe to call from another goroutine at any time.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
