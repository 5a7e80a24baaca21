package export

import (
	"encoding/json"
	"fmt"

	"github.com/Sgtscottadams/ab-poller/internal/models"
)

// CatalogDocument is the JSON export shape for a tag catalog. The same
// document imports back for round-trips between sites.
type CatalogDocument struct {
	TagCount int                    `json:"tag_count"`
	Tags     []models.TagDescriptor `json:"tags"`
}

// SnapshotDocument is the JSON export shape for a value snapshot.
type SnapshotDocument struct {
	ValueCount int               `json:"value_count"`
	Values     []models.TagValue `json:"values"`
}

// CatalogJSON renders a catalog as an indented JSON document. Tags are
// sorted by name so unchanged input produces identical bytes.
func CatalogJSON(tags []models.TagDescriptor) ([]byte, error) {
	doc := CatalogDocument{
		TagCount: len(tags),
		Tags:     sortedCatalog(tags),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding catalog: %w", err)
	}
	return append(data, '\n'), nil
}

// ImportCatalogJSON parses a previously exported catalog document.
func ImportCatalogJSON(data []byte) ([]models.TagDescriptor, error) {
	var doc CatalogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing catalog document: %w", err)
	}
	if len(doc.Tags) == 0 {
		return nil, fmt.Errorf("catalog document has no tags")
	}
	for i := range doc.Tags {
		if doc.Tags[i].Name == "" {
			return nil, fmt.Errorf("catalog document: tag %d has no name", i)
		}
	}
	return doc.Tags, nil
}

// SnapshotJSON renders a value snapshot as an indented JSON document,
// sorted by tag name.
func SnapshotJSON(values []models.TagValue) ([]byte, error) {
	doc := SnapshotDocument{
		ValueCount: len(values),
		Values:     sortedSnapshot(values),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return append(data, '\n'), nil
}
