package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/nari/internal/metrics"
	"github.com/alfredjeanlab/nari/internal/model"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health and
// GET /metrics) must include a valid Authorization: Bearer <token> header.
func (s *NariServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/commands", s.handleDispatch)
	mux.HandleFunc("GET /v1/commands", s.handleListCommands)
	mux.HandleFunc("GET /v1/badges", s.handleListBadges)
	mux.HandleFunc("GET /v1/badges/{member}", s.handleGetBadge)
	mux.HandleFunc("GET /v1/members/{member}/events", s.handleMemberEvents)
	mux.HandleFunc("GET /v1/events", s.handleListEvents)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return AuthMiddleware(authToken, mux)
}

// handleDispatch handles POST /v1/commands. The body is a model.Invocation;
// the reply is always a model.Response, with the status code derived from
// its kind.
func (s *NariServer) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var inv model.Invocation
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if inv.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}
	if inv.Principal.ID == "" {
		writeError(w, http.StatusBadRequest, "principal.id is required")
		return
	}
	resp := s.disp.Dispatch(r.Context(), &inv)
	writeJSON(w, statusForKind(resp.Kind), resp)
}

// handleListCommands handles GET /v1/commands.
func (s *NariServer) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"commands": s.commands()})
}

// handleListBadges handles GET /v1/badges.
func (s *NariServer) handleListBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("list badges", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list badges")
		return
	}
	if badges == nil {
		badges = []*model.BadgeRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"badges": badges, "total": len(badges)})
}

// handleGetBadge handles GET /v1/badges/{member}.
func (s *NariServer) handleGetBadge(w http.ResponseWriter, r *http.Request) {
	member := r.PathValue("member")
	rec, err := s.registry.Lookup(r.Context(), member)
	if errors.Is(err, model.ErrNotRegistered) {
		writeError(w, http.StatusNotFound, "member has no badge")
		return
	}
	if err != nil {
		s.logger.Error("lookup badge", "member_id", member, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to look up badge")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleMemberEvents handles GET /v1/members/{member}/events.
func (s *NariServer) handleMemberEvents(w http.ResponseWriter, r *http.Request) {
	member := r.PathValue("member")
	evs, err := s.store.GetEvents(r.Context(), member)
	if err != nil {
		s.logger.Error("get events", "member_id", member, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to get events")
		return
	}
	if evs == nil {
		evs = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

// handleListEvents handles GET /v1/events?limit=N.
func (s *NariServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}
	evs, err := s.store.ListEvents(r.Context(), limit)
	if err != nil {
		s.logger.Error("list events", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if evs == nil {
		evs = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

// handleHealth handles GET /v1/health.
func (s *NariServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusForKind(kind model.ResponseKind) int {
	switch kind {
	case model.KindSuccess:
		return http.StatusOK
	case model.KindDenied:
		return http.StatusForbidden
	case model.KindNotFound, model.KindUnknownCommand:
		return http.StatusNotFound
	case model.KindAlreadyExists:
		return http.StatusConflict
	case model.KindArgumentError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
