package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidegate/worldsync/internal/engine"
	"github.com/tidegate/worldsync/internal/eventbus"
	"github.com/tidegate/worldsync/internal/feed"
	"github.com/tidegate/worldsync/internal/lifecycle"
)

type Server struct {
	Lifecycle  *lifecycle.Manager
	Subscriber *feed.Subscriber
	Bus        *eventbus.Bus
	StartedAt  time.Time
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/resync", s.handleResync)
	mux.HandleFunc("/api/entities", s.handleEntities)
	mux.HandleFunc("/api/entities/", s.handleEntityItem)
	mux.HandleFunc("/api/interact", s.handleInteract)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/streams/subscribe", s.handleStreamSubscribe)
	mux.HandleFunc("/api/streams/ws", s.handleStreamWS)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	status := map[string]any{
		"entities": s.Lifecycle.Len(),
		"uptime":   time.Since(s.StartedAt).Round(time.Second).String(),
	}
	if s.Subscriber != nil {
		status["feed_phase"] = string(s.Subscriber.Phase())
		status["feed_connected"] = s.Subscriber.IsConnected()
		status["feed_attempts"] = s.Subscriber.Attempts()
		if err := s.Subscriber.Err(); err != nil {
			status["feed_error"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if s.Subscriber == nil {
		writeError(w, http.StatusNotImplemented, errNotFound("change feed"))
		return
	}
	// re-query the catalog rather than trusting any earlier push
	count := s.Subscriber.LoadAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"spawned": count})
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	ids := s.Lifecycle.IDs()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": ids, "count": len(ids)})
}

func (s *Server) handleEntityItem(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/entities/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errNotFound("entity"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !s.Lifecycle.Has(id) {
			writeError(w, http.StatusNotFound, errNotFound("entity"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "live": true})
	case http.MethodDelete:
		if !s.Lifecycle.Despawn(r.Context(), id) {
			writeError(w, http.StatusNotFound, errNotFound("entity"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var payload struct {
		EntityID   string `json:"entity_id"`
		PlayerID   string `json:"player_id"`
		PlayerName string `json:"player_name"`
		Message    string `json:"message"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.EntityID == "" || payload.PlayerID == "" {
		writeError(w, http.StatusBadRequest, errors.New("entity_id and player_id are required"))
		return
	}
	err := s.Lifecycle.Interact(r.Context(), payload.EntityID, payload.PlayerID, payload.PlayerName, payload.Message)
	switch {
	case errors.Is(err, engine.ErrBusy):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, lifecycle.ErrNotSpawned):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	stream := r.URL.Query().Get("stream")
	if stream == "" {
		stream = eventbus.StreamSync
	}
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	order := r.URL.Query().Get("order")
	items, err := s.Bus.List(r.Context(), stream, eventbus.ListOptions{
		Limit: limit,
		Order: order,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleStreamSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	streamsParam := r.URL.Query().Get("streams")
	if streamsParam == "" {
		streamsParam = eventbus.StreamSync + "," + eventbus.StreamErrors
	}
	streamList := splitComma(streamsParam)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errNotFound("streaming support"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	_, _ = w.Write([]byte(":ok\n\n"))
	flusher.Flush()

	ctx := r.Context()
	sub := s.Bus.Subscribe(ctx, streamList)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub:
			if !ok {
				return
			}
			payload, _ := json.Marshal(evt)
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

func decodeJSON(body io.Reader, dest any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitComma(value string) []string {
	parts := strings.Split(value, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

type notFoundError struct {
	msg string
}

func (e notFoundError) Error() string { return e.msg }

func errNotFound(target string) error {
	return notFoundError{msg: target + " not found"}
}
