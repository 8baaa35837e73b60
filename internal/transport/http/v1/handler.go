// Package v1 provides the console HTTP handlers.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/adapter/controller"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/runsync"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers console routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Console state
	e.GET("/v1/console/state", h.GetState)
	e.GET("/v1/console/events", h.StreamState)
	e.PUT("/v1/console/mode", h.SetMode)
	e.PUT("/v1/console/query", h.SetQuery)

	// Run control
	e.POST("/v1/runs", h.StartRun)
	e.POST("/v1/runs/active/pause", h.PauseRun)
	e.POST("/v1/runs/active/resume", h.ResumeRun)
	e.POST("/v1/runs/active/stop", h.StopRun)
	e.POST("/v1/selections", h.SubmitSelection)
	e.PUT("/v1/selections/:node/draft", h.SetDraft)

	// Pipeline configuration
	e.GET("/v1/plan", h.GetPlan)
	e.PUT("/v1/plan", h.SavePlan)
	e.GET("/v1/graph", h.GetGraph)
	e.PUT("/v1/graph", h.SaveGraph)
	e.GET("/v1/settings", h.GetSettings)
	e.PUT("/v1/settings", h.SaveSettings)
	e.PATCH("/v1/settings/:agent_id", h.UpdateAgentSetting)

	// Traces and archive
	e.GET("/v1/traces", h.GetTraces)
	e.POST("/v1/traces/refresh", h.RefreshTraces)
	e.GET("/v1/history", h.ListHistory)
	e.GET("/v1/history/:run_id", h.GetHistoryRun)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var ctrlErr *controller.Error
	switch {
	case errors.Is(err, service.ErrQueryRequired),
		errors.Is(err, service.ErrInvalidMode),
		errors.Is(err, service.ErrNodeRequired),
		errors.Is(err, service.ErrUnknownAgentField),
		errors.Is(err, runsync.ErrChoiceOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, runsync.ErrNotPending), errors.Is(err, service.ErrStartInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrArchiveDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, service.ErrServiceStopped):
		return http.StatusServiceUnavailable
	case errors.As(err, &ctrlErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
