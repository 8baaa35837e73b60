package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

// GetPlan returns the pipeline plan the next run will use.
// GET /v1/plan
func (h *Handler) GetPlan(c echo.Context) error {
	snap, err := h.service.Snapshot(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflow_plan": snap.Plan,
		"loaded":        snap.PlanLoaded,
	})
}

// SavePlan persists the pipeline plan.
// PUT /v1/plan
func (h *Handler) SavePlan(c echo.Context) error {
	var req domain.WorkflowPlanRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.Steps) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "steps is required"})
	}

	plan, err := h.service.SavePlan(c.Request().Context(), req.Steps)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, domain.WorkflowPlanResponse{WorkflowPlan: plan})
}

// GetGraph returns the displayed graph blueprint.
// GET /v1/graph
func (h *Handler) GetGraph(c echo.Context) error {
	snap, err := h.service.Snapshot(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, snap.Graph)
}

// SaveGraph persists a graph blueprint.
// PUT /v1/graph
func (h *Handler) SaveGraph(c echo.Context) error {
	var req domain.GraphBlueprint
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	graph, err := h.service.SaveGraph(c.Request().Context(), &req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, graph)
}

// GetSettings returns agent settings with their readiness.
// GET /v1/settings
func (h *Handler) GetSettings(c echo.Context) error {
	snap, err := h.service.Snapshot(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"agents":  snap.Settings,
		"loaded":  snap.SettingsLoaded,
		"ready":   snap.SettingsReady,
		"missing": snap.MissingAgents,
	})
}

// SaveSettings replaces and persists agent settings. An empty body saves
// the local edits.
// PUT /v1/settings
func (h *Handler) SaveSettings(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.AgentSettingsEnvelope
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	var (
		saved domain.AgentSettings
		err   error
	)
	if req.Agents == nil {
		saved, err = h.service.SaveSettings(ctx)
	} else {
		saved, err = h.service.ReplaceSettings(ctx, req.Agents)
	}
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, domain.AgentSettingsEnvelope{Agents: saved})
}

// UpdateAgentSetting edits one settings field locally.
// PATCH /v1/settings/:agent_id
func (h *Handler) UpdateAgentSetting(c echo.Context) error {
	var req struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := h.service.UpdateAgentSetting(c.Request().Context(), c.Param("agent_id"), req.Field, req.Value); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// GetTraces returns the recent trace list.
// GET /v1/traces
func (h *Handler) GetTraces(c echo.Context) error {
	snap, err := h.service.Snapshot(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, domain.TracesResponse{Traces: snap.Traces})
}

// RefreshTraces reloads the recent trace list from the controller.
// POST /v1/traces/refresh
func (h *Handler) RefreshTraces(c echo.Context) error {
	if err := h.service.RefreshTraces(c.Request().Context()); err != nil {
		return errorJSON(c, err)
	}
	return h.GetTraces(c)
}

// ListHistory lists archived runs.
// GET /v1/history
func (h *Handler) ListHistory(c echo.Context) error {
	limit := 20
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}

	runs, err := h.service.History(c.Request().Context(), limit)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs": runs,
	})
}

// GetHistoryRun returns one archived run with its event log.
// GET /v1/history/:run_id
func (h *Handler) GetHistoryRun(c echo.Context) error {
	run, err := h.service.HistoryRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, run)
}
