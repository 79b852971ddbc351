// Package handlers provides HTTP API request handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zetxtech/websole/internal/auth"
	"github.com/zetxtech/websole/internal/model"
	"github.com/zetxtech/websole/internal/session"
)

// RunLister reads the run history.
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]*model.Run, error)
}

// SessionHandler serves the status and lifecycle routes of the shared session.
type SessionHandler struct {
	hub  *session.Hub
	gate *auth.Gate
	runs RunLister
	log  zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler. runs may be nil when
// history is disabled.
func NewSessionHandler(hub *session.Hub, gate *auth.Gate, runs RunLister) *SessionHandler {
	return &SessionHandler{
		hub:  hub,
		gate: gate,
		runs: runs,
		log:  log.With().Str("module", "api").Logger(),
	}
}

// SessionResponse represents the session in API responses.
type SessionResponse struct {
	State        string `json:"state"`
	ExitCode     *int   `json:"exitCode,omitempty"`
	PID          *int   `json:"pid,omitempty"`
	Rows         uint16 `json:"rows"`
	Cols         uint16 `json:"cols"`
	Clients      int    `json:"clients"`
	Restarts     int    `json:"restarts"`
	AllowRestart bool   `json:"allowRestart"`
	Duration     string `json:"duration,omitempty"`
	StartedAt    string `json:"startedAt,omitempty"`
}

// HeartbeatResponse is returned by the heartbeat route.
type HeartbeatResponse struct {
	Status string `json:"status"`
	PID    *int   `json:"pid,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (h *SessionHandler) toSessionResponse(st model.SessionStatus) *SessionResponse {
	resp := &SessionResponse{
		State:        string(st.State),
		ExitCode:     st.ExitCode,
		PID:          st.PID,
		Rows:         st.Rows,
		Cols:         st.Cols,
		Clients:      st.Clients,
		Restarts:     st.Restarts,
		AllowRestart: h.hub.Policy().AllowRestart,
	}
	if st.StartedAt != nil {
		resp.StartedAt = st.StartedAt.Format(time.RFC3339)
		if st.State == model.SessionStateRunning {
			resp.Duration = formatDuration(st.Duration())
		}
	}
	return resp
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return time.Duration(h*time.Hour + m*time.Minute + s*time.Second).String()
	}
	if m > 0 {
		return time.Duration(m*time.Minute + s*time.Second).String()
	}
	return time.Duration(s * time.Second).String()
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// Healthz handles GET /healthz.
func (h *SessionHandler) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "200 OK")
}

// Heartbeat handles GET /heartbeat?p=PASS - starts the program if it is not
// running. It only works when a password is configured, so an open console
// cannot be kept alive by strangers. Wrong passwords count toward the login
// lockout.
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	if err := h.gate.Verify(c.Query(auth.QueryParam)); err != nil {
		if errors.Is(err, model.ErrTooManyAttempts) {
			sendError(c, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "Too many login trials")
			return
		}
		sendError(c, http.StatusForbidden, "FORBIDDEN", "Heartbeat requires the console password")
		return
	}

	started, err := h.hub.Revive(c.Request.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("heartbeat failed to start program")
		if errors.Is(err, model.ErrHubClosed) {
			sendError(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Server is shutting down")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start program: "+err.Error())
		return
	}

	st := h.hub.Status()
	if started {
		h.log.Info().Msg("program started by heartbeat")
		c.JSON(http.StatusCreated, HeartbeatResponse{Status: "restarted", PID: st.PID})
		return
	}
	c.JSON(http.StatusOK, HeartbeatResponse{Status: "running", PID: st.PID})
}

// Get handles GET /api/session - returns the session status.
func (h *SessionHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.toSessionResponse(h.hub.Status()))
}

// Restart handles POST /api/session/restart - replaces the running program.
func (h *SessionHandler) Restart(c *gin.Context) {
	if err := h.hub.RequestRestart(c.Request.Context()); err != nil {
		switch {
		case errors.Is(err, model.ErrRestartNotAllowed):
			sendError(c, http.StatusForbidden, "RESTART_NOT_ALLOWED", "Restart is disabled")
		case errors.Is(err, model.ErrHubClosed):
			sendError(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Server is shutting down")
		default:
			sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to restart program: "+err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, h.toSessionResponse(h.hub.Status()))
}

// ListRuns handles GET /api/runs - lists recent program runs.
func (h *SessionHandler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusOK, []*model.Run{})
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid limit: "+v)
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list runs: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, runs)
}

// RegisterPublicRoutes registers the routes that bypass the login.
func (h *SessionHandler) RegisterPublicRoutes(r gin.IRoutes) {
	r.GET("/healthz", h.Healthz)
	r.GET("/heartbeat", h.Heartbeat)
}

// RegisterRoutes registers the session handler routes on a gated group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/session", h.Get)
	rg.POST("/session/restart", h.Restart)
	rg.GET("/runs", h.ListRuns)
}
