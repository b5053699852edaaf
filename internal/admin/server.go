// Package admin serves the operator HTTP API of the roster engine.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"fleetroster/internal/fleet"
	"fleetroster/internal/logging"
	"fleetroster/internal/manager"
)

// Roster is the manager surface exposed over HTTP.
type Roster interface {
	Status() manager.Status
	CompositionSnapshot() manager.Composition
	StructureSnapshot() fleet.Tree
	History(limit int) []fleet.HistoryEntry
	LossHistory(limit int) []fleet.LossRecord
	Formation(ctx context.Context, opts manager.FormationOptions) (*manager.FormationResult, error)
	Invite(ctx context.Context, idsOrNames []string) (*manager.BatchResult, error)
	Kick(ctx context.Context, idsOrNames []string, delay time.Duration) (*manager.BatchResult, error)
	UpdateMotd(ctx context.Context, text string, appendText bool) error
}

type Server struct {
	Roster Roster
	logger *slog.Logger
}

func NewServer(r Roster, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Roster: r, logger: logger.With("component", "admin")}
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/composition", s.handleComposition)
	r.Get("/structure", s.handleStructure)
	r.Get("/history", s.handleHistory)
	r.Get("/losses", s.handleLosses)
	r.Post("/formation", s.handleFormation)
	r.Post("/invite", s.handleInvite)
	r.Post("/kick", s.handleKick)
	r.Post("/motd", s.handleMotd)
	return r
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("admin API listening", "addr", addr)
	return srv.ListenAndServe()
}

// requestLogger tags every request with an id and stores a request-scoped
// logger in the context.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		logger := s.logger.With("request_id", id, "method", r.Method, "path", r.URL.Path)
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logging.NewContext(r.Context(), logger)))
		logger.Debug("request served", "status", ww.Status(), "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error, extra map[string]any) {
	status := http.StatusInternalServerError
	var (
		ve  *fleet.ValidationError
		be  *fleet.BatchError
		rce *fleet.RemoteCallError
	)
	switch {
	case errors.Is(err, manager.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.As(err, &be), errors.As(err, &rce):
		status = http.StatusBadGateway
	case errors.Is(err, fleet.ErrEmptyTree):
		status = http.StatusConflict
	}
	body := map[string]any{"success": false, "error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fleet.Invalid("limit", "must be a non-negative integer, got %q", raw)
	}
	return n, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fleet.Invalid("body", "%v", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": s.Roster.Status()})
}

func (s *Server) handleComposition(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "composition": s.Roster.CompositionSnapshot()})
}

func (s *Server) handleStructure(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "structure": s.Roster.StructureSnapshot()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "history": s.Roster.History(limit)})
}

func (s *Server) handleLosses(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "losses": s.Roster.LossHistory(limit)})
}

func (s *Server) handleFormation(w http.ResponseWriter, r *http.Request) {
	var opts manager.FormationOptions
	if r.ContentLength != 0 {
		if err := decode(r, &opts); err != nil {
			writeError(w, err, nil)
			return
		}
	}
	res, err := s.Roster.Formation(r.Context(), opts)
	if err != nil {
		writeError(w, err, map[string]any{"result": res})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
}

type targetsRequest struct {
	Targets []string `json:"targets"`
	// Delay is a Go duration string; empty uses the configured kick delay.
	Delay string `json:"delay,omitempty"`
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req targetsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	if len(req.Targets) == 0 {
		writeError(w, fleet.Invalid("targets", "at least one id or name required"), nil)
		return
	}
	res, err := s.Roster.Invite(r.Context(), req.Targets)
	if err != nil {
		writeError(w, err, map[string]any{"result": res})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	var req targetsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	if len(req.Targets) == 0 {
		writeError(w, fleet.Invalid("targets", "at least one id or name required"), nil)
		return
	}
	delay := time.Duration(-1)
	if req.Delay != "" {
		d, err := time.ParseDuration(req.Delay)
		if err != nil || d < 0 {
			writeError(w, fleet.Invalid("delay", "must be a non-negative duration, got %q", req.Delay), nil)
			return
		}
		delay = d
	}
	res, err := s.Roster.Kick(r.Context(), req.Targets, delay)
	if err != nil {
		writeError(w, err, map[string]any{"result": res})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
}

type motdRequest struct {
	Text   string `json:"text"`
	Append bool   `json:"append"`
}

func (s *Server) handleMotd(w http.ResponseWriter, r *http.Request) {
	var req motdRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	if err := s.Roster.UpdateMotd(r.Context(), req.Text, req.Append); err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
