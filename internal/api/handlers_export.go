// handlers_export.go - Report export handlers
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Sgtscottadams/ab-poller/internal/export"
	"github.com/Sgtscottadams/ab-poller/internal/models"
)

// ExportHandlerImpl implements the ExportHandler interface
type ExportHandlerImpl struct {
	store     Store
	artifacts *export.ArtifactStore
}

// NewExportHandler creates a new export handler instance
func NewExportHandler(store Store, artifacts *export.ArtifactStore) ExportHandler {
	return &ExportHandlerImpl{
		store:     store,
		artifacts: artifacts,
	}
}

type exportRequest struct {
	RecordID string `json:"record_id"`
	Format   string `json:"format"`
	// Label names the output file; defaults to the record ID prefix.
	Label string `json:"label,omitempty"`
}

// HandleExport renders a stored catalog or snapshot record in the
// requested format, saves the artifact, and links it on the record
func (h *ExportHandlerImpl) HandleExport(c echo.Context) error {
	var req exportRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.RecordID == "" {
		return NewValidationError("record_id")
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		return NewBadRequestError("unsupported format", err)
	}
	if strings.ContainsAny(req.Label, `/\`) {
		return NewBadRequestError("label must not contain path separators", nil)
	}

	ctx := c.Request().Context()
	rec, err := h.store.GetRecord(ctx, req.RecordID)
	if err != nil {
		return MapStoreError("record", req.RecordID, err)
	}

	var data []byte
	switch rec.Collection {
	case models.CollectionTagCatalog:
		var doc export.CatalogDocument
		if err := json.Unmarshal(rec.Payload, &doc); err != nil {
			return NewExportError(fmt.Sprintf("record %s has no catalog payload", rec.ID), err)
		}
		data, err = export.Catalog(format, doc.Tags)
	case models.CollectionSnapshot:
		var doc export.SnapshotDocument
		if err := json.Unmarshal(rec.Payload, &doc); err != nil {
			return NewExportError(fmt.Sprintf("record %s has no snapshot payload", rec.ID), err)
		}
		data, err = export.Snapshot(format, doc.Values)
	default:
		return NewExportError(fmt.Sprintf("record %s collection %q is not exportable", rec.ID, rec.Collection), nil)
	}
	if err != nil {
		return NewExportError(fmt.Sprintf("failed to render record %s", rec.ID), err)
	}

	label := req.Label
	if label == "" && len(rec.ID) >= 8 {
		label = rec.ID[:8]
	}
	name := export.FileName(label, format, time.Now())

	artifact, err := h.artifacts.Save(name, format, data)
	if err != nil {
		return NewInternalError("failed to save artifact", err)
	}

	rec.FilePath = artifact.Path
	if err := h.store.UpsertRecord(ctx, rec); err != nil {
		return MapStoreError("record", rec.ID, err)
	}

	fmt.Printf("[Export] Record %s rendered as %s (%d bytes)\n", rec.ID, name, artifact.Size)
	return c.JSON(http.StatusOK, artifact)
}

// HandleListArtifacts returns recently emitted report files
func (h *ExportHandlerImpl) HandleListArtifacts(c echo.Context) error {
	artifacts := h.artifacts.List(50)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"artifacts": artifacts,
		"count":     len(artifacts),
	})
}
