package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eugenenazirov/metar-view/internal/runtimeconfig"
	"github.com/eugenenazirov/metar-view/internal/storage"
	"github.com/eugenenazirov/metar-view/internal/view"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// SessionCookieName is the cookie carrying the browser session id.
const SessionCookieName = "metar_session"

// Handler wires sessions, rendering and the runtime config into HTTP handlers.
type Handler struct {
	sessions storage.Sessions
	renderer *view.Renderer
	runtime  runtimeconfig.Runtime
	logger   *zap.Logger

	clock    func() time.Time
	upgrader websocket.Upgrader
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(sessions storage.Sessions, renderer *view.Renderer, runtime runtimeconfig.Runtime, logger *zap.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		sessions: sessions,
		renderer: renderer,
		runtime:  runtime,
		logger:   logger.Named("api"),
		clock: func() time.Time {
			return time.Now().UTC()
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRuntimeConfig(w http.ResponseWriter, r *http.Request) {
	_ = r
	writeJSON(w, http.StatusOK, h.runtime)
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	_, controller, ok := h.session(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.renderer.RenderPage(&buf, controller.Snapshot()); err != nil {
		h.logger.Error("failed to render page", zap.Error(err), zap.String("request_id", requestIDFromContext(r.Context())))
		writeInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	_, controller, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, controller.Snapshot())
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	icao, err := selectionFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse selection payload")
		return
	}

	_, controller, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := controller.Select(icao); err != nil {
		if errors.Is(err, view.ErrEmptySelection) {
			writeError(w, http.StatusBadRequest, "Invalid selection", err.Error(), "Pick an airport from the list")
			return
		}
		writeInternalError(w, err)
		return
	}

	h.respondWithState(w, r, controller)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	_, controller, ok := h.session(w, r)
	if !ok {
		return
	}

	controller.Refresh()
	h.respondWithState(w, r, controller)
}

func (h *Handler) respondWithState(w http.ResponseWriter, r *http.Request, controller *view.Controller) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, controller.Snapshot())
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// session resolves the caller's session id and controller, issuing a cookie
// for new sessions.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, *view.Controller, bool) {
	var id string
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		id = cookie.Value
	}

	sessionID, controller, created, err := h.sessions.Acquire(id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Service unavailable", err.Error())
		return "", nil, false
	}

	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    sessionID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sessionID, controller, true
}

func selectionFromRequest(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req selectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", err
		}
		return req.ICAO, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.PostFormValue("icao"), nil
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type selectRequest struct {
	ICAO string `json:"icao"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
