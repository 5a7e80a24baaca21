// handlers_discover.go - Tag catalog discovery handlers
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/Sgtscottadams/ab-poller/internal/catalog"
	"github.com/Sgtscottadams/ab-poller/internal/export"
	"github.com/Sgtscottadams/ab-poller/internal/models"
	"github.com/Sgtscottadams/ab-poller/internal/plc"
)

// DiscoverHandlerImpl implements the DiscoverHandler interface
type DiscoverHandlerImpl struct {
	store      Store
	driver     plc.Driver
	browseRate rate.Limit
}

// NewDiscoverHandler creates a new discovery handler instance
func NewDiscoverHandler(store Store, driver plc.Driver, browseRate rate.Limit) DiscoverHandler {
	return &DiscoverHandlerImpl{
		store:      store,
		driver:     driver,
		browseRate: browseRate,
	}
}

type discoverRequest struct {
	ProjectID  string `json:"project_id"`
	Address    string `json:"address"`
	Slot       int    `json:"slot"`
	BestEffort bool   `json:"best_effort,omitempty"`
}

type discoverResponse struct {
	RecordID string                 `json:"record_id"`
	TagCount int                    `json:"tag_count"`
	Tags     []models.TagDescriptor `json:"tags"`
	Issues   []string               `json:"issues,omitempty"`
}

// HandleDiscover connects to a controller, enumerates its tags, and
// persists the catalog as a tag_catalog record
func (h *DiscoverHandlerImpl) HandleDiscover(c echo.Context) error {
	var req discoverRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.ProjectID == "" {
		return NewValidationError("project_id")
	}
	if req.Address == "" {
		return NewValidationError("address")
	}

	ctx := c.Request().Context()
	if _, err := h.store.GetProject(ctx, req.ProjectID); err != nil {
		return MapStoreError("project", req.ProjectID, err)
	}

	conn, err := h.driver.Connect(ctx, req.Address, req.Slot)
	if err != nil {
		return MapDriverError(req.Address, err)
	}
	defer conn.Disconnect()

	builder := catalog.NewBuilder(conn, catalog.Options{
		BestEffort: req.BestEffort,
		BrowseRate: h.browseRate,
	})
	result, err := builder.Build(ctx)
	if err != nil {
		if plc.IsConnError(err) {
			return NewTransportError(req.Address, err)
		}
		var dup *catalog.DuplicateTagError
		if errors.As(err, &dup) {
			return NewConflictError(dup.Error())
		}
		return NewExportError("catalog build failed", err)
	}

	payload, err := json.Marshal(export.CatalogDocument{
		TagCount: len(result.Tags),
		Tags:     result.Tags,
	})
	if err != nil {
		return NewInternalError("failed to encode catalog", err)
	}

	rec := &models.Record{
		ID:         uuid.New().String(),
		ProjectID:  req.ProjectID,
		Collection: models.CollectionTagCatalog,
		Payload:    payload,
		Summary:    fmt.Sprintf("%d tags from %s", len(result.Tags), req.Address),
		Tags:       []string{"catalog", req.Address},
		Status:     models.RecordStatusOK,
	}
	if len(result.Issues) > 0 {
		rec.Status = models.RecordStatusError
	}
	if err := h.store.UpsertRecord(ctx, rec); err != nil {
		return MapStoreError("record", rec.ID, err)
	}

	fmt.Printf("[Discover] %d tags from %s saved as record %s\n", len(result.Tags), req.Address, rec.ID)
	return c.JSON(http.StatusOK, discoverResponse{
		RecordID: rec.ID,
		TagCount: len(result.Tags),
		Tags:     result.Tags,
		Issues:   result.Issues,
	})
}

type importCatalogRequest struct {
	ProjectID string `json:"project_id"`
	// Source labels where the document came from, e.g. the original
	// controller address; defaults to "import".
	Source  string          `json:"source,omitempty"`
	Catalog json.RawMessage `json:"catalog"`
}

// HandleImportCatalog persists a previously exported catalog document
// as a tag_catalog record, so air-gapped sites can move catalogs
// between machines without a controller connection.
func (h *DiscoverHandlerImpl) HandleImportCatalog(c echo.Context) error {
	var req importCatalogRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.ProjectID == "" {
		return NewValidationError("project_id")
	}
	if len(req.Catalog) == 0 {
		return NewValidationError("catalog")
	}

	ctx := c.Request().Context()
	if _, err := h.store.GetProject(ctx, req.ProjectID); err != nil {
		return MapStoreError("project", req.ProjectID, err)
	}

	tags, err := export.ImportCatalogJSON(req.Catalog)
	if err != nil {
		return NewBadRequestError("invalid catalog document", err)
	}

	source := req.Source
	if source == "" {
		source = "import"
	}
	payload, err := json.Marshal(export.CatalogDocument{
		TagCount: len(tags),
		Tags:     tags,
	})
	if err != nil {
		return NewInternalError("failed to encode catalog", err)
	}

	rec := &models.Record{
		ID:         uuid.New().String(),
		ProjectID:  req.ProjectID,
		Collection: models.CollectionTagCatalog,
		Payload:    payload,
		Summary:    fmt.Sprintf("%d tags imported from %s", len(tags), source),
		Tags:       []string{"catalog", source},
		Status:     models.RecordStatusOK,
	}
	if err := h.store.UpsertRecord(ctx, rec); err != nil {
		return MapStoreError("record", rec.ID, err)
	}

	fmt.Printf("[Discover] Imported %d tags (%s) as record %s\n", len(tags), source, rec.ID)
	return c.JSON(http.StatusCreated, discoverResponse{
		RecordID: rec.ID,
		TagCount: len(tags),
		Tags:     tags,
	})
}
