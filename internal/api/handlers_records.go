// handlers_records.go - Knowledge-store record query handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Sgtscottadams/ab-poller/internal/models"
	"github.com/Sgtscottadams/ab-poller/internal/store"
)

// RecordHandlerImpl implements the RecordHandler interface
type RecordHandlerImpl struct {
	store Store
}

// NewRecordHandler creates a new record handler instance
func NewRecordHandler(store Store) RecordHandler {
	return &RecordHandlerImpl{store: store}
}

// HandleListRecords returns records matching the query filters
func (h *RecordHandlerImpl) HandleListRecords(c echo.Context) error {
	filter := store.RecordFilter{
		ProjectID:  c.QueryParam("project_id"),
		Collection: c.QueryParam("collection"),
		TagKeyword: c.QueryParam("tag"),
		Status:     models.RecordStatus(c.QueryParam("status")),
	}

	records, err := h.store.FindRecords(c.Request().Context(), filter)
	if err != nil {
		return NewInternalError("failed to query records", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// HandleGetRecord returns one record by ID
func (h *RecordHandlerImpl) HandleGetRecord(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	rec, err := h.store.GetRecord(c.Request().Context(), id)
	if err != nil {
		return MapStoreError("record", id, err)
	}
	return c.JSON(http.StatusOK, rec)
}
