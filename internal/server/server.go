// Package server exposes the browsing service over a local HTTP API.
// The API is consumed by the bundled frontend; it binds to loopback by
// default and carries no authentication.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/tuckview/tuckview/pkg/adapter"
	"github.com/tuckview/tuckview/pkg/browse"
	"github.com/tuckview/tuckview/pkg/config"
	"github.com/tuckview/tuckview/pkg/errors"
)

// Server wraps the HTTP listener around a browse service.
type Server struct {
	cfg     config.ServerConfig
	logger  *zap.Logger
	service *browse.Service
	http    *http.Server
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, service *browse.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "server")),
		service: service,
	}
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Routes assembles the API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/formats", s.handleFormats)

		r.Route("/files", func(r chi.Router) {
			r.Post("/open", s.handleOpen)
			r.Get("/recent", s.handleRecent)
			r.Delete("/recent", s.handleForgetRecent)
			r.Get("/discover", s.handleDiscover)

			r.Route("/{handle}", func(r chi.Router) {
				r.Get("/", s.handleFileInfo)
				r.Delete("/", s.handleClose)
				r.Get("/tables", s.handleTables)
				r.Get("/tables/{table}/schema", s.handleSchema)
				r.Get("/tables/{table}/rows", s.handleRows)
				r.Patch("/tables/{table}/rows/{key}", s.handleEdit)
			})
		})
	})
	return r
}

// ListenAndServe blocks serving the API until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", zap.String("addr", s.cfg.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFormats(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]interface{}{
		"formats":    adapter.Formats(),
		"extensions": adapter.Extensions(),
	})
}

type openRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := gojson.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, errors.Wrap(err, errors.ErrorTypeValidation, "malformed request body"))
		return
	}
	if req.Path == "" {
		s.respondError(w, errors.New(errors.ErrorTypeValidation, "path is required"))
		return
	}

	info, err := s.service.OpenFile(req.Path)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, info)
}

func (s *Server) handleRecent(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]interface{}{
		"entries": s.service.RecentFiles(),
	})
}

func (s *Server) handleForgetRecent(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, errors.New(errors.ErrorTypeValidation, "path query parameter is required"))
		return
	}
	removed, err := s.service.ForgetRecentFile(path)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		s.respondError(w, errors.New(errors.ErrorTypeValidation, "dir query parameter is required"))
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"files": s.service.Discover(dir),
	})
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.FileInfo(chi.URLParam(r, "handle"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, info)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CloseFile(chi.URLParam(r, "handle")); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.service.ListTables(chi.URLParam(r, "handle"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{"tables": tables})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.service.GetSchema(chi.URLParam(r, "handle"), chi.URLParam(r, "table"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, schema)
}

func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil {
		s.respondError(w, err)
		return
	}
	limit, err := queryInt(q.Get("limit"), 0)
	if err != nil {
		s.respondError(w, err)
		return
	}

	var sortSpec *adapter.SortSpec
	if col := q.Get("sort"); col != "" {
		direction := adapter.Asc
		switch q.Get("order") {
		case "", "asc":
		case "desc":
			direction = adapter.Desc
		default:
			s.respondError(w, errors.Newf(errors.ErrorTypeValidation,
				"order must be asc or desc, got %q", q.Get("order")))
			return
		}
		sortSpec = &adapter.SortSpec{Column: col, Direction: direction}
	}

	page, err := s.service.GetPage(chi.URLParam(r, "handle"), chi.URLParam(r, "table"), offset, limit, sortSpec)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, page)
}

type editRequest struct {
	Values  map[string]interface{} `json:"values"`
	Version string                 `json:"version"`
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := gojson.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, errors.Wrap(err, errors.ErrorTypeValidation, "malformed request body"))
		return
	}

	result, err := s.service.EditRow(r.Context(), browse.EditRequest{
		Handle:  chi.URLParam(r, "handle"),
		Table:   chi.URLParam(r, "table"),
		Key:     parseKey(chi.URLParam(r, "key")),
		Values:  req.Values,
		Version: req.Version,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

// parseKey shapes the path segment into the scalar the key most likely
// is; the editor coerces it against the table's actual key type.
func parseKey(raw string) interface{} {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

func queryInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Newf(errors.ErrorTypeValidation, "not an integer: %q", raw)
	}
	return n, nil
}

func (s *Server) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := gojson.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

type errorResponse struct {
	Error   string                 `json:"error"`
	Type    errors.ErrorType       `json:"type"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: err.Error(), Type: errors.ErrorTypeInternal}

	if e, ok := err.(*errors.Error); ok {
		resp.Type = e.Type
		resp.Details = e.Details
		status = statusFor(e.Type)
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respond(w, status, resp)
}

func statusFor(t errors.ErrorType) int {
	switch t {
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypeHandleNotFound,
		errors.ErrorTypeTableNotFound,
		errors.ErrorTypeRowNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeConflict:
		return http.StatusConflict
	case errors.ErrorTypeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case errors.ErrorTypeCorruptFile:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
