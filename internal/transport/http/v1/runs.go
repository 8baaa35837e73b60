package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

// StartRunRequest is the request to start a run.
type StartRunRequest struct {
	Query string   `json:"query"`
	Mode  string   `json:"mode,omitempty"`
	Plan  []string `json:"plan,omitempty"`
}

// SelectionRequest submits a human decision.
type SelectionRequest struct {
	Node        string `json:"node"`
	ChoiceIndex *int   `json:"choice_index"`
}

// DraftRequest moves the highlighted option.
type DraftRequest struct {
	Index *int `json:"index"`
}

// StartRun starts a new run.
// POST /v1/runs
func (h *Handler) StartRun(c echo.Context) error {
	ctx := c.Request().Context()

	var req StartRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	runID, err := h.service.Start(ctx, req.Query, domain.RunMode(req.Mode), req.Plan)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusCreated, domain.StartRunResponse{RunID: runID})
}

// PauseRun pauses the active run.
// POST /v1/runs/active/pause
func (h *Handler) PauseRun(c echo.Context) error {
	if err := h.service.Pause(c.Request().Context()); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// ResumeRun resumes the active run.
// POST /v1/runs/active/resume
func (h *Handler) ResumeRun(c echo.Context) error {
	if err := h.service.Resume(c.Request().Context()); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// StopRun stops the active run.
// POST /v1/runs/active/stop
func (h *Handler) StopRun(c echo.Context) error {
	if err := h.service.Stop(c.Request().Context()); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// SubmitSelection submits a decision for a checkpoint node.
// POST /v1/selections
func (h *Handler) SubmitSelection(c echo.Context) error {
	var req SelectionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.ChoiceIndex == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "choice_index is required"})
	}

	if err := h.service.SubmitDecision(c.Request().Context(), req.Node, *req.ChoiceIndex); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// SetDraft moves the highlighted option for a pending node.
// PUT /v1/selections/:node/draft
func (h *Handler) SetDraft(c echo.Context) error {
	var req DraftRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Index == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "index is required"})
	}

	if err := h.service.SetDraft(c.Request().Context(), c.Param("node"), *req.Index); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
