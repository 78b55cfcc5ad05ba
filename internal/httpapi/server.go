package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeadvisor/internal/advisory"
	"github.com/hamed0406/uptimeadvisor/internal/domain"
	apimw "github.com/hamed0406/uptimeadvisor/internal/httpapi/middleware"
	"github.com/hamed0406/uptimeadvisor/internal/repo"
	"github.com/hamed0406/uptimeadvisor/internal/scheduler"
)

type Server struct {
	Logger   *zap.Logger
	Targets  repo.TargetStore
	Monitor  *scheduler.Registry
	Advisory advisory.Generator
}

func NewServer(l *zap.Logger, ts repo.TargetStore, mon *scheduler.Registry, gen advisory.Generator) *Server {
	return &Server{Logger: l, Targets: ts, Monitor: mon, Advisory: gen}
}

// Router wires public (any key) and admin routes. Empty key sets disable
// the corresponding check; an empty origin list allows all origins.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)
	if len(allowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(pubRPM, pubBurst), apimw.RequireAny(keys))
			r.Get("/targets", s.handleListTargets)
			r.Get("/targets/{id}/history", s.handleHistory)
			r.Get("/monitoring/active", s.handleActive)
			r.Get("/monitoring/{id}/status", s.handleStatus)
			r.Get("/greeting", s.handleGreeting)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(admRPM, admBurst), apimw.RequireAdmin(keys))
			r.Post("/targets", s.handleAddTarget)
			r.Delete("/targets/{id}", s.handleDeleteTarget)
			r.Post("/monitoring/{id}/start", s.handleStart)
			r.Post("/monitoring/{id}/stop", s.handleStop)
			r.Post("/monitoring/{id}/check", s.handleCheck)
		})
	})

	return r
}

type addPayload struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Monitor bool   `json:"monitor"`
}

type targetView struct {
	*domain.Target
	Monitoring bool `json:"monitoring"`
}

func (s *Server) handleAddTarget(w http.ResponseWriter, r *http.Request) {
	var p addPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.URL == "" {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	raw := strings.TrimSpace(p.URL)
	if !isValidHTTPURL(raw) {
		writeError(w, http.StatusBadRequest, "url must be http(s) with a host")
		return
	}

	t := &domain.Target{
		Name:      strings.TrimSpace(p.Name),
		URL:       normalizeHTTPURL(raw),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Targets.Add(r.Context(), t); err != nil {
		if errors.Is(err, domain.ErrDuplicateURL) {
			writeError(w, http.StatusConflict, "target already exists")
			return
		}
		s.Logger.Error("add_target_failed", zap.String("url", t.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add")
		return
	}

	if p.Monitor {
		if err := s.Monitor.Start(r.Context(), t.ID); err != nil {
			s.Logger.Warn("add_target_start_failed", zap.String("target_id", string(t.ID)), zap.Error(err))
		}
	}

	s.Logger.Info("added_target",
		zap.String("target_id", string(t.ID)),
		zap.String("url", t.URL),
		zap.Bool("monitor", p.Monitor),
		zap.String("role", string(apimw.RoleFrom(r.Context()))),
	)
	writeJSON(w, http.StatusCreated, map[string]any{
		"target": targetView{Target: t, Monitoring: s.Monitor.IsActive(t.ID)},
	})
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Targets.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	out := make([]targetView, 0, len(ts))
	for _, t := range ts {
		out = append(out, targetView{Target: t, Monitoring: s.Monitor.IsActive(t.ID)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id := targetID(r)
	if err := s.Monitor.Remove(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrTargetNotFound) {
			writeError(w, http.StatusNotFound, "target not found")
			return
		}
		s.Logger.Error("delete_target_failed", zap.String("target_id", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not delete")
		return
	}
	s.Logger.Info("deleted_target",
		zap.String("target_id", string(id)),
		zap.String("role", string(apimw.RoleFrom(r.Context()))),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := targetID(r)
	if !s.targetExists(w, r, id) {
		return
	}
	limit := repo.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = n
	}
	hist, err := s.Monitor.History(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history error")
		return
	}
	if hist == nil {
		hist = []*domain.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := targetID(r)
	if err := s.Monitor.Start(r.Context(), id); err != nil {
		s.writeMonitorError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"target_id": id, "active": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := targetID(r)
	s.Monitor.Stop(id)
	writeJSON(w, http.StatusOK, map[string]any{"target_id": id, "active": false})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	id := targetID(r)
	rec, err := s.Monitor.CheckNow(r.Context(), id)
	if err != nil {
		s.writeMonitorError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type statusView struct {
	TargetID domain.TargetID `json:"target_id"`
	Active   bool            `json:"active"`
	domain.LatestResult
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := targetID(r)
	if !s.targetExists(w, r, id) {
		return
	}
	res, err := s.Monitor.LatestResult(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status error")
		return
	}
	writeJSON(w, http.StatusOK, statusView{TargetID: id, Active: s.Monitor.IsActive(id), LatestResult: res})
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"active": s.Monitor.Active()})
}

func (s *Server) handleGreeting(w http.ResponseWriter, r *http.Request) {
	msg := advisory.Greeting(r.Context(), s.Advisory, r.URL.Query().Get("name"))
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) targetExists(w http.ResponseWriter, r *http.Request, id domain.TargetID) bool {
	if _, err := s.Targets.FindByID(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrTargetNotFound) {
			writeError(w, http.StatusNotFound, "target not found")
		} else {
			writeError(w, http.StatusInternalServerError, "lookup error")
		}
		return false
	}
	return true
}

func (s *Server) writeMonitorError(w http.ResponseWriter, id domain.TargetID, err error) {
	switch {
	case errors.Is(err, domain.ErrTargetNotFound):
		writeError(w, http.StatusNotFound, "target not found")
	case errors.Is(err, scheduler.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		s.Logger.Error("monitor_request_failed", zap.String("target_id", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "monitor error")
	}
}

func targetID(r *http.Request) domain.TargetID {
	return domain.TargetID(chi.URLParam(r, "id"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// isValidHTTPURL accepts absolute http(s) URLs with a host.
func isValidHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Hostname() != ""
}

// normalizeHTTPURL lower-cases scheme and host, drops the default port and
// a bare trailing "/". Deeper paths are kept as given.
func normalizeHTTPURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String()
}
