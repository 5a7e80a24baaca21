// Package export renders tag catalogs and value snapshots as JSON,
// XLSX, or XML reports, and stores the emitted files so knowledge-store
// records can link them.
package export

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Sgtscottadams/ab-poller/internal/models"
)

// Format selects an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
	FormatXML  Format = "xml"
)

// ParseFormat validates a format string from a request.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatXML:
		return FormatXML, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Catalog renders a tag catalog in the requested format.
func Catalog(format Format, tags []models.TagDescriptor) ([]byte, error) {
	switch format {
	case FormatJSON:
		return CatalogJSON(tags)
	case FormatXLSX:
		return CatalogXLSX(tags)
	case FormatXML:
		return CatalogXML(tags)
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// Snapshot renders a value snapshot in the requested format.
func Snapshot(format Format, values []models.TagValue) ([]byte, error) {
	switch format {
	case FormatJSON:
		return SnapshotJSON(values)
	case FormatXLSX:
		return SnapshotXLSX(values)
	case FormatXML:
		return SnapshotXML(values)
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// FileName builds the report file name for one export: timestamp plus
// the controller address with dots flattened, matching the scan folder
// naming the field tooling expects.
func FileName(address string, format Format, at time.Time) string {
	base := fmt.Sprintf("%s_%s_tags", at.Format("20060102_1504"), strings.ReplaceAll(address, ".", "_"))
	switch format {
	case FormatXLSX:
		return base + ".xlsx"
	case FormatXML:
		return base + "_full.xml"
	default:
		return base + "_full.json"
	}
}

// sortedCatalog returns a copy of the catalog ordered by tag name so
// every format emits tags in the same stable order. Member order is
// preserved: it mirrors the structure's memory layout.
func sortedCatalog(tags []models.TagDescriptor) []models.TagDescriptor {
	out := make([]models.TagDescriptor, len(tags))
	copy(out, tags)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// sortedSnapshot orders values by tag name.
func sortedSnapshot(values []models.TagValue) []models.TagValue {
	out := make([]models.TagValue, len(values))
	copy(out, values)
	sort.Slice(out, func(i, j int) bool { return out[i].TagName < out[j].TagName })
	return out
}

// typeLabel renders a descriptor's type the way reports show it:
// structure name when known, element type with dimensions for arrays.
func typeLabel(desc *models.TagDescriptor) string {
	label := string(desc.DataType)
	if desc.DataType == models.DataTypeStruct && desc.StructName != "" {
		label = desc.StructName
	}
	for _, dim := range desc.Dimensions {
		label += fmt.Sprintf("[%d]", dim)
	}
	return label
}
