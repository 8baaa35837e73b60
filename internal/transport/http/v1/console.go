package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

// GetState returns the console snapshot.
// GET /v1/console/state
func (h *Handler) GetState(c echo.Context) error {
	snap, err := h.service.Snapshot(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// StreamState pushes a snapshot event after every console change.
// GET /v1/console/events
func (h *Handler) StreamState(c echo.Context) error {
	ctx := c.Request().Context()
	changes, cancel := h.service.Subscribe()
	defer cancel()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	write := func() error {
		snap, err := h.service.Snapshot(ctx)
		if err != nil {
			return err
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(res, "event: snapshot\ndata: %s\n\n", data); err != nil {
			return err
		}
		res.Flush()
		return nil
	}

	if err := write(); err != nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			if err := write(); err != nil {
				return nil
			}
		}
	}
}

// SetMode selects the mode for the next run.
// PUT /v1/console/mode
func (h *Handler) SetMode(c echo.Context) error {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := h.service.SetMode(c.Request().Context(), domain.RunMode(req.Mode)); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// SetQuery replaces the draft query.
// PUT /v1/console/query
func (h *Handler) SetQuery(c echo.Context) error {
	var req struct {
		Query string `json:"query"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := h.service.SetQuery(c.Request().Context(), req.Query); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
