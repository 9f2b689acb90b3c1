package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bloomd/pkg/config"
	"bloomd/pkg/filter"
	"bloomd/pkg/registry"
)

const (
	contentTypeJSON        = "application/json"
	defaultShutdownTimeout = time.Second * 5
)

type iRegistry interface {
	List(prefix string) []string
	Info(name string) (filter.Stats, error)
}

// Server is the read-only admin API next to the line protocol.
type Server struct {
	reg        iRegistry
	httpServer *http.Server
	URL        string
	addr       string
}

func NewServer(reg iRegistry, cfg config.HTTPConfig) *Server {
	port := strconv.Itoa(cfg.Port)
	s := &Server{
		reg:  reg,
		URL:  "http://localhost:" + port,
		addr: ":" + port,
	}
	readHeaderTimeout := cfg.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = time.Second
	}
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.createRouter(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler exposes the router, mostly for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves in the background.
func (s *Server) Start() error {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metricsHandler())
	r.Get("/filters", s.handleList)
	r.Get("/filters/{name}", s.handleInfo)

	return r
}

// metricsHandler serves filter stats from a private Prometheus registry.
func (s *Server) metricsHandler() http.Handler {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(filterCollector{reg: s.reg})
	return promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	s.writeJSON(w, http.StatusOK, NewFiltersResponse(s.reg.List(prefix)))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	st, err := s.reg.Info(name)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("Filter does not exist"))
		return
	case err != nil:
		s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, NewFilterResponse(st))
}
