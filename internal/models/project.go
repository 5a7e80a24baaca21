package models

import (
	"encoding/json"
	"time"
)

// Project is a named grouping of scan records, typically one per site
// or commissioning job. ID is immutable and globally unique.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Client    string    `json:"client,omitempty"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordStatus is the lifecycle state of a persisted record.
type RecordStatus string

const (
	RecordStatusPending RecordStatus = "pending"
	RecordStatusOK      RecordStatus = "ok"
	RecordStatusError   RecordStatus = "error"
)

// Well-known record collections.
const (
	CollectionTagCatalog   = "tag_catalog"
	CollectionMonitorEvent = "monitor_event"
	CollectionSnapshot     = "value_snapshot"
)

// Record is one persisted unit of work: a serialized catalog, a value
// snapshot, or a monitor change event. Every record belongs to exactly
// one project; ID and ProjectID never change after creation.
type Record struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	Collection  string          `json:"collection"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Status      RecordStatus    `json:"status"`
	LastUpdated time.Time       `json:"last_updated"`
	FilePath    string          `json:"file_path,omitempty"`
}
