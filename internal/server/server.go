// Package server exposes a read-only HTTP API over the store repository.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/storefront-cli/internal/metrics"
	"github.com/sells-group/storefront-cli/internal/model"
	"github.com/sells-group/storefront-cli/internal/store"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// Server wires HTTP handlers to the repository.
type Server struct {
	router chi.Router
	store  store.Store
}

// New constructs a Server with middleware and routes.
func New(st store.Store) *Server {
	s := &Server{store: st}

	r := chi.NewRouter()
	r.Use(observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stores", s.listStores)
		r.Get("/stores/{domain}", s.getStore)
		r.Get("/sweeps", s.listSweeps)
		r.Get("/sweeps/{id}", s.getSweep)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type storesResponse struct {
	Stores []model.StoreRecord `json:"stores"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listStores(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	total, err := s.store.Count(r.Context(), f)
	if err != nil {
		s.internalError(w, "count stores", err)
		return
	}
	recs, err := s.store.Query(r.Context(), f)
	if err != nil {
		s.internalError(w, "query stores", err)
		return
	}
	if recs == nil {
		recs = []model.StoreRecord{}
	}

	writeJSON(w, http.StatusOK, storesResponse{
		Stores: recs,
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

func (s *Server) getStore(w http.ResponseWriter, r *http.Request) {
	d := strings.ToLower(chi.URLParam(r, "domain"))
	rec, err := s.store.Get(r.Context(), d)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "store not found")
		return
	}
	if err != nil {
		s.internalError(w, "get store", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) listSweeps(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sweeps, err := s.store.ListSweeps(r.Context(), limit)
	if err != nil {
		s.internalError(w, "list sweeps", err)
		return
	}
	if sweeps == nil {
		sweeps = []model.Sweep{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sweeps": sweeps})
}

func (s *Server) getSweep(w http.ResponseWriter, r *http.Request) {
	sw, err := s.store.GetSweep(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "sweep not found")
		return
	}
	if err != nil {
		s.internalError(w, "get sweep", err)
		return
	}
	writeJSON(w, http.StatusOK, sw)
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	zap.L().Error("server: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// parseFilter maps query parameters onto a repository filter. Platform
// defaults to true; pass platform=false to list rejected candidates.
func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		Platform: store.BoolPtr(true),
		Country:  q.Get("country"),
		State:    q.Get("state"),
	}

	var err error
	if f.Platform, err = boolParam(q.Get("platform"), f.Platform); err != nil {
		return f, err
	}
	if f.Premium, err = boolParam(q.Get("premium"), nil); err != nil {
		return f, err
	}
	if f.HasStreet, err = boolParam(q.Get("has_street"), nil); err != nil {
		return f, err
	}
	if f.Serviceable, err = boolParam(q.Get("serviceable"), nil); err != nil {
		return f, err
	}
	if v := q.Get("unchecked"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, eris.Errorf("invalid unchecked %q", v)
		}
		f.Unchecked = b
	}

	if f.Limit, err = intParam(r, "limit", defaultPageSize); err != nil {
		return f, err
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset, err = intParam(r, "offset", 0); err != nil {
		return f, err
	}
	return f, nil
}

func boolParam(v string, def *bool) (*bool, error) {
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, eris.Errorf("invalid boolean %q", v)
	}
	return &b, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

// observe records request metrics against the matched route pattern.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
