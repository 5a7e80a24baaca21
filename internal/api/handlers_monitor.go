// handlers_monitor.go - Monitor session control handlers
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Sgtscottadams/ab-poller/internal/models"
	"github.com/Sgtscottadams/ab-poller/internal/monitor"
)

// MonitorHandlerImpl implements the MonitorHandler interface
type MonitorHandlerImpl struct {
	store    Store
	sessions SessionManager
	defaults monitor.Config
}

// NewMonitorHandler creates a new monitor handler instance
func NewMonitorHandler(store Store, sessions SessionManager, defaults monitor.Config) MonitorHandler {
	return &MonitorHandlerImpl{
		store:    store,
		sessions: sessions,
		defaults: defaults,
	}
}

type startMonitorRequest struct {
	ProjectID        string   `json:"project_id"`
	Address          string   `json:"address"`
	Slot             int      `json:"slot"`
	Tags             []string `json:"tags"`
	WatchList        string   `json:"watch_list,omitempty"`
	PollIntervalMs   int64    `json:"poll_interval_ms,omitempty"`
	FailureThreshold int      `json:"failure_threshold,omitempty"`
}

// HandleStartMonitor resolves the subscribed tags against the
// project's catalog and launches a polling session
func (h *MonitorHandlerImpl) HandleStartMonitor(c echo.Context) error {
	var req startMonitorRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Address == "" {
		return NewValidationError("address")
	}
	if len(req.Tags) == 0 && req.WatchList == "" {
		return NewValidationError("tags")
	}

	ctx := c.Request().Context()
	byName, apiErr := catalogIndex(ctx, h.store, req.ProjectID)
	if apiErr != nil {
		return apiErr
	}

	cfg := h.defaults

	var descriptors []models.TagDescriptor
	if req.WatchList != "" {
		wl, err := monitor.ParseWatchList(req.WatchList)
		if err != nil {
			return NewBadRequestError("invalid watch list", err)
		}
		cfg = wl.ApplyConfig(cfg)
		full := make([]models.TagDescriptor, 0, len(byName))
		for _, desc := range byName {
			full = append(full, *desc)
		}
		descriptors, err = wl.Select(full)
		if err != nil {
			return NewBadRequestError("watch list selection failed", err)
		}
	} else {
		descriptors = make([]models.TagDescriptor, 0, len(req.Tags))
		for _, name := range req.Tags {
			desc, ok := byName[strings.ToLower(name)]
			if !ok {
				return NewNotFoundError("tag", name)
			}
			descriptors = append(descriptors, *desc)
		}
	}

	if req.PollIntervalMs > 0 {
		cfg.PollInterval = time.Duration(req.PollIntervalMs) * time.Millisecond
	}
	if req.FailureThreshold > 0 {
		cfg.FailureThreshold = req.FailureThreshold
	}

	status, err := h.sessions.Start(req.ProjectID, req.Address, req.Slot, descriptors, cfg)
	if err != nil {
		return NewConflictError(err.Error())
	}

	fmt.Printf("[Monitor] Session %s started on %s (%d tags)\n", status.ID, req.Address, len(descriptors))
	return c.JSON(http.StatusCreated, status)
}

// HandleGetMonitor returns one session's status
func (h *MonitorHandlerImpl) HandleGetMonitor(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	status, ok := h.sessions.Get(id)
	if !ok {
		return NewNotFoundError("monitor session", id)
	}
	return c.JSON(http.StatusOK, status)
}

// HandleListMonitors returns every known session
func (h *MonitorHandlerImpl) HandleListMonitors(c echo.Context) error {
	sessions := h.sessions.List()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// HandleStopMonitor cancels a session after flushing pending events
func (h *MonitorHandlerImpl) HandleStopMonitor(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	if !h.sessions.Stop(id) {
		return NewNotFoundError("monitor session", id)
	}
	return c.NoContent(http.StatusNoContent)
}
