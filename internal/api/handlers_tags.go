// handlers_tags.go - One-shot tag read/write handlers
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Sgtscottadams/ab-poller/internal/decode"
	"github.com/Sgtscottadams/ab-poller/internal/export"
	"github.com/Sgtscottadams/ab-poller/internal/models"
	"github.com/Sgtscottadams/ab-poller/internal/plc"
	"github.com/Sgtscottadams/ab-poller/internal/store"
)

// TagHandlerImpl implements the TagHandler interface
type TagHandlerImpl struct {
	store  Store
	driver plc.Driver
}

// NewTagHandler creates a new tag handler instance
func NewTagHandler(store Store, driver plc.Driver) TagHandler {
	return &TagHandlerImpl{
		store:  store,
		driver: driver,
	}
}

type readTagsRequest struct {
	ProjectID string   `json:"project_id"`
	Address   string   `json:"address"`
	Slot      int      `json:"slot"`
	Tags      []string `json:"tags"`
	// Persist saves the readings as a value_snapshot record.
	Persist bool `json:"persist,omitempty"`
}

type readTagsResponse struct {
	Values   []models.TagValue `json:"values"`
	RecordID string            `json:"record_id,omitempty"`
}

type writeTagRequest struct {
	ProjectID string      `json:"project_id"`
	Address   string      `json:"address"`
	Slot      int         `json:"slot"`
	TagName   string      `json:"tag_name"`
	Value     interface{} `json:"value"`
}

// HandleReadTags reads named tags once and returns typed values.
// Per-tag failures are reported in the value's quality, never as a
// request failure
func (h *TagHandlerImpl) HandleReadTags(c echo.Context) error {
	var req readTagsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Address == "" {
		return NewValidationError("address")
	}
	if len(req.Tags) == 0 {
		return NewValidationError("tags")
	}

	ctx := c.Request().Context()
	byName, apiErr := catalogIndex(ctx, h.store, req.ProjectID)
	if apiErr != nil {
		return apiErr
	}

	conn, err := h.driver.Connect(ctx, req.Address, req.Slot)
	if err != nil {
		return MapDriverError(req.Address, err)
	}
	defer conn.Disconnect()

	// Only tags present in the catalog reach the controller.
	var readable []string
	resolved := make(map[string]*models.TagDescriptor, len(req.Tags))
	for _, name := range req.Tags {
		if desc, ok := byName[strings.ToLower(name)]; ok {
			resolved[name] = desc
			readable = append(readable, desc.Name)
		}
	}

	results := map[string]plc.ReadResult{}
	if len(readable) > 0 {
		results, err = conn.Read(ctx, readable)
		if err != nil {
			return MapDriverError(req.Address, err)
		}
	}

	now := time.Now()
	values := make([]models.TagValue, 0, len(req.Tags))
	for _, name := range req.Tags {
		desc, known := resolved[name]
		if !known {
			values = append(values, models.TagValue{
				TagName:   name,
				Timestamp: now,
				Quality:   models.QualityReadError,
				Error:     "tag not in catalog",
			})
			continue
		}
		values = append(values, readValue(desc, results[desc.Name], now))
	}

	resp := readTagsResponse{Values: values}
	if req.Persist {
		recordID, apiErr := h.persistSnapshot(ctx, req.ProjectID, req.Address, values)
		if apiErr != nil {
			return apiErr
		}
		resp.RecordID = recordID
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleWriteTag encodes and writes one value to the controller
func (h *TagHandlerImpl) HandleWriteTag(c echo.Context) error {
	var req writeTagRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Address == "" {
		return NewValidationError("address")
	}
	if req.TagName == "" {
		return NewValidationError("tag_name")
	}

	ctx := c.Request().Context()
	byName, apiErr := catalogIndex(ctx, h.store, req.ProjectID)
	if apiErr != nil {
		return apiErr
	}
	desc, ok := byName[strings.ToLower(req.TagName)]
	if !ok {
		return NewNotFoundError("tag", req.TagName)
	}

	raw, err := decode.EncodeTag(desc, req.Value)
	if err != nil {
		return NewDecodeError(desc.Name, err)
	}

	conn, err := h.driver.Connect(ctx, req.Address, req.Slot)
	if err != nil {
		return MapDriverError(req.Address, err)
	}
	defer conn.Disconnect()

	if err := conn.Write(ctx, desc.Name, raw); err != nil {
		if plc.IsConnError(err) {
			return NewTransportError(req.Address, err)
		}
		return NewBadRequestError(fmt.Sprintf("write rejected for tag %s", desc.Name), err)
	}

	fmt.Printf("[Tags] Wrote %s on %s\n", desc.Name, req.Address)
	return c.JSON(http.StatusOK, map[string]string{
		"tag_name": desc.Name,
		"status":   "written",
	})
}

// catalogIndex loads the project's most recent tag catalog and indexes
// it by lowercased name, matching tags the way the controller does.
func catalogIndex(ctx context.Context, s Store, projectID string) (map[string]*models.TagDescriptor, *APIError) {
	if projectID == "" {
		return nil, NewValidationError("project_id")
	}
	records, err := s.FindRecords(ctx, store.RecordFilter{
		ProjectID:  projectID,
		Collection: models.CollectionTagCatalog,
	})
	if err != nil {
		return nil, MapStoreError("record", projectID, err)
	}
	if len(records) == 0 {
		return nil, NewNotFoundError("tag catalog for project", projectID)
	}

	var doc export.CatalogDocument
	if err := json.Unmarshal(records[0].Payload, &doc); err != nil {
		return nil, NewInternalError("stored catalog is unreadable", err)
	}

	byName := make(map[string]*models.TagDescriptor, len(doc.Tags))
	for i := range doc.Tags {
		byName[strings.ToLower(doc.Tags[i].Name)] = &doc.Tags[i]
	}
	return byName, nil
}

func (h *TagHandlerImpl) persistSnapshot(ctx context.Context, projectID, address string, values []models.TagValue) (string, *APIError) {
	payload, err := json.Marshal(export.SnapshotDocument{
		ValueCount: len(values),
		Values:     values,
	})
	if err != nil {
		return "", NewInternalError("failed to encode snapshot", err)
	}
	rec := &models.Record{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		Collection: models.CollectionSnapshot,
		Payload:    payload,
		Summary:    fmt.Sprintf("%d values from %s", len(values), address),
		Tags:       []string{"snapshot", address},
		Status:     models.RecordStatusOK,
	}
	if err := h.store.UpsertRecord(ctx, rec); err != nil {
		return "", MapStoreError("record", rec.ID, err)
	}
	return rec.ID, nil
}

// readValue decodes one read result into a typed value. Decode and
// read failures surface in the value's quality.
func readValue(desc *models.TagDescriptor, res plc.ReadResult, now time.Time) models.TagValue {
	tv := models.TagValue{
		TagName:   desc.Name,
		DataType:  desc.DataType,
		Timestamp: now,
	}
	if res.Err != nil {
		tv.Quality = models.QualityReadError
		tv.Error = res.Err.Error()
		return tv
	}
	value, err := decode.DecodeTag(desc, res.Raw)
	if err != nil {
		tv.Quality = models.QualityReadError
		tv.Error = err.Error()
		return tv
	}
	tv.Value = value
	tv.Quality = models.QualityOK
	return tv
}
