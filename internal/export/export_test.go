package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sgtscottadams/ab-poller/internal/decode"
	"github.com/Sgtscottadams/ab-poller/internal/models"
)

func sampleCatalog() []models.TagDescriptor {
	return []models.TagDescriptor{
		{
			Name:     "Program:MainProgram.Cycle_Count",
			DataType: models.DataTypeDInt,
			TypeCode: decode.TypeDINT,
			Scope:    models.ScopeProgram,
			Program:  "MainProgram",
		},
		{
			Name:       "Motor_1",
			DataType:   models.DataTypeStruct,
			TypeCode:   0x8FA2,
			StructName: "MOTOR_DATA",
			Scope:      models.ScopeController,
			Members: []models.TagDescriptor{
				{Name: "Running", DataType: models.DataTypeBool, TypeCode: decode.TypeBOOL},
				{Name: "Speed", DataType: models.DataTypeReal, TypeCode: decode.TypeREAL},
				{Name: "Faults", DataType: models.DataTypeDInt, TypeCode: decode.TypeDINT, Dimensions: []int{4}},
			},
		},
		{
			Name:       "Alarm_Buffer",
			DataType:   models.DataTypeDInt,
			TypeCode:   decode.TypeDINT,
			Scope:      models.ScopeController,
			Dimensions: []int{16},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"json", "XLSX", "xml"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("Expected %q to parse, got %v", s, err)
		}
	}
	if _, err := ParseFormat("csv"); err == nil {
		t.Error("Expected csv to be rejected")
	}
}

func TestCatalogJSONRoundTrip(t *testing.T) {
	catalog := sampleCatalog()
	data, err := CatalogJSON(catalog)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	imported, err := ImportCatalogJSON(data)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(imported) != len(catalog) {
		t.Fatalf("Expected %d tags, got %d", len(catalog), len(imported))
	}

	// Re-export of the import must be byte-identical.
	again, err := CatalogJSON(imported)
	if err != nil {
		t.Fatalf("Re-export failed: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Error("Expected identical bytes after round-trip")
	}
}

func TestCatalogJSONDeterministic(t *testing.T) {
	catalog := sampleCatalog()
	first, err := CatalogJSON(catalog)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	// Same tags in a different input order still export identically.
	reversed := []models.TagDescriptor{catalog[2], catalog[0], catalog[1]}
	second, err := CatalogJSON(reversed)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("Expected input order not to affect output bytes")
	}
}

func TestCatalogJSONFieldNames(t *testing.T) {
	data, err := CatalogJSON(sampleCatalog())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	for _, field := range []string{`"name"`, `"data_type"`, `"type_code"`, `"scope"`, `"dimensions"`, `"members"`, `"struct_name"`} {
		if !bytes.Contains(data, []byte(field)) {
			t.Errorf("Expected document to contain %s", field)
		}
	}
}

func TestImportCatalogJSONRejectsBadDocuments(t *testing.T) {
	if _, err := ImportCatalogJSON([]byte(`{"tag_count":0,"tags":[]}`)); err == nil {
		t.Error("Expected empty catalog to be rejected")
	}
	if _, err := ImportCatalogJSON([]byte(`{"tags":[{"data_type":"DINT"}]}`)); err == nil {
		t.Error("Expected nameless tag to be rejected")
	}
	if _, err := ImportCatalogJSON([]byte(`not json`)); err == nil {
		t.Error("Expected malformed document to be rejected")
	}
}

func TestCatalogXML(t *testing.T) {
	data, err := CatalogXML(sampleCatalog())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	doc := string(data)

	if !strings.Contains(doc, "<PLCTagScan>") || !strings.Contains(doc, "<Tags>") {
		t.Fatalf("Expected PLCTagScan/Tags hierarchy, got:\n%s", doc)
	}
	if !strings.Contains(doc, `<Tag name="Motor_1" dataType="MOTOR_DATA">`) {
		t.Errorf("Expected structure Tag element, got:\n%s", doc)
	}
	if !strings.Contains(doc, `<Member name="Speed" dataType="REAL">`) {
		t.Errorf("Expected nested Member element, got:\n%s", doc)
	}
	if !strings.Contains(doc, `<Member name="Faults" dataType="DINT[4]">`) {
		t.Errorf("Expected array dimensions in type label, got:\n%s", doc)
	}

	// Alarm_Buffer sorts before Motor_1.
	if strings.Index(doc, "Alarm_Buffer") > strings.Index(doc, "Motor_1") {
		t.Error("Expected tags in name order")
	}
}

func TestCatalogXLSX(t *testing.T) {
	data, err := CatalogXLSX(sampleCatalog())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	// XLSX is a zip container.
	if len(data) < 4 || data[0] != 'P' || data[1] != 'K' {
		t.Fatal("Expected a zip-packaged workbook")
	}
}

func TestSnapshotJSON(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	values := []models.TagValue{
		{TagName: "Counter", DataType: models.DataTypeDInt, Value: int32(42), Timestamp: now, Quality: models.QualityOK},
		{TagName: "Alarm", DataType: models.DataTypeBool, Timestamp: now, Quality: models.QualityReadError, Error: "timeout"},
	}
	data, err := SnapshotJSON(values)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	for _, field := range []string{`"tag_name"`, `"quality"`, `"read_error"`, `"timeout"`} {
		if !bytes.Contains(data, []byte(field)) {
			t.Errorf("Expected document to contain %s", field)
		}
	}
	// Alarm sorts before Counter.
	if bytes.Index(data, []byte("Alarm")) > bytes.Index(data, []byte("Counter")) {
		t.Error("Expected values in tag-name order")
	}
}

func TestSnapshotXML(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	values := []models.TagValue{
		{TagName: "Counter", DataType: models.DataTypeDInt, Value: int32(42), Timestamp: now, Quality: models.QualityOK},
		{TagName: "Alarm", DataType: models.DataTypeBool, Timestamp: now, Quality: models.QualityReadError, Error: "timeout"},
	}
	data, err := SnapshotXML(values)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	doc := string(data)

	if !strings.Contains(doc, `<Value name="Counter" dataType="DINT" quality="ok" timestamp="2026-08-01T12:00:00Z">42</Value>`) {
		t.Errorf("Expected full reading element, got:\n%s", doc)
	}
	if !strings.Contains(doc, `quality="read_error"`) || !strings.Contains(doc, `error="timeout"`) {
		t.Errorf("Expected failed reading to keep quality and error, got:\n%s", doc)
	}
	// Alarm sorts before Counter.
	if strings.Index(doc, "Alarm") > strings.Index(doc, "Counter") {
		t.Error("Expected values in tag-name order")
	}
}

func TestFileName(t *testing.T) {
	at := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	cases := []struct {
		format Format
		want   string
	}{
		{FormatXLSX, "20260801_0930_192_168_1_10_tags.xlsx"},
		{FormatJSON, "20260801_0930_192_168_1_10_tags_full.json"},
		{FormatXML, "20260801_0930_192_168_1_10_tags_full.xml"},
	}
	for _, tc := range cases {
		if got := FileName("192.168.1.10", tc.format, at); got != tc.want {
			t.Errorf("FileName(%s) = %q, want %q", tc.format, got, tc.want)
		}
	}
}

func TestArtifactStore(t *testing.T) {
	store, err := NewArtifactStore(filepath.Join(t.TempDir(), "plc_scans"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	for _, name := range []string{"../escape.json", "a/b.json", "..", ""} {
		if _, err := store.Save(name, FormatJSON, []byte(`{}`)); err == nil {
			t.Errorf("Expected Save to reject name %q", name)
		}
	}

	artifact, err := store.Save("scan_tags.json", FormatJSON, []byte(`{"tags":[]}`))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if artifact.Size != int64(len(`{"tags":[]}`)) {
		t.Errorf("Unexpected size: %d", artifact.Size)
	}

	onDisk, err := os.ReadFile(artifact.Path)
	if err != nil {
		t.Fatalf("Expected file on disk: %v", err)
	}
	if string(onDisk) != `{"tags":[]}` {
		t.Errorf("Unexpected file contents: %s", onDisk)
	}

	got, err := store.Get(artifact.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "scan_tags.json" || got.Format != FormatJSON {
		t.Errorf("Unexpected metadata: %+v", got)
	}

	if list := store.List(10); len(list) != 1 {
		t.Errorf("Expected 1 artifact listed, got %d", len(list))
	}

	if err := store.Delete(artifact.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(artifact.Path); !os.IsNotExist(err) {
		t.Error("Expected file removed")
	}
	if _, err := store.Get(artifact.ID); err == nil {
		t.Error("Expected metadata removed")
	}
}
