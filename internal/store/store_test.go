// store_test.go - Tests for the DuckDB-backed knowledge store
package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sgtscottadams/ab-poller/internal/models"
)

func createTestStore(t *testing.T) *KnowledgeStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "knowledge.duckdb")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestProject(t *testing.T, s *KnowledgeStore, id string) *models.Project {
	t.Helper()
	p := &models.Project{ID: id, Name: "Plant " + id, Client: "ACME", Location: "Line 3"}
	if err := s.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	return p
}

func TestCreateProject(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	t.Run("round trips fields", func(t *testing.T) {
		createTestProject(t, s, "site-a")
		got, err := s.GetProject(ctx, "site-a")
		if err != nil {
			t.Fatalf("GetProject failed: %v", err)
		}
		if got.Name != "Plant site-a" || got.Client != "ACME" || got.Location != "Line 3" {
			t.Errorf("Unexpected project: %+v", got)
		}
		if got.CreatedAt.IsZero() || !got.UpdatedAt.Equal(got.CreatedAt) {
			t.Errorf("Expected created_at == updated_at, got %v / %v", got.CreatedAt, got.UpdatedAt)
		}
	})

	t.Run("generates id when empty", func(t *testing.T) {
		p := &models.Project{Name: "Unnamed"}
		if err := s.CreateProject(ctx, p); err != nil {
			t.Fatalf("CreateProject failed: %v", err)
		}
		if p.ID == "" {
			t.Error("Expected a generated project ID")
		}
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		err := s.CreateProject(ctx, &models.Project{ID: "site-a", Name: "Again"})
		if !errors.Is(err, ErrConflict) {
			t.Errorf("Expected ErrConflict, got %v", err)
		}
	})

	t.Run("missing project is not found", func(t *testing.T) {
		_, err := s.GetProject(ctx, "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestUpsertRecord(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestProject(t, s, "site-b")

	t.Run("missing project writes no row", func(t *testing.T) {
		rec := &models.Record{ID: "r-ghost", ProjectID: "ghost", Collection: models.CollectionTagCatalog}
		err := s.UpsertRecord(ctx, rec)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
		if _, err := s.GetRecord(ctx, "r-ghost"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected no row to be written, got %v", err)
		}
	})

	t.Run("insert then update", func(t *testing.T) {
		rec := &models.Record{
			ID:         "r-1",
			ProjectID:  "site-b",
			Collection: models.CollectionTagCatalog,
			Payload:    json.RawMessage(`{"tags":[]}`),
			Summary:    "initial scan",
			Tags:       []string{"catalog", "line3"},
			Status:     models.RecordStatusPending,
		}
		if err := s.UpsertRecord(ctx, rec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		firstUpdate := rec.LastUpdated

		time.Sleep(5 * time.Millisecond)
		rec.Summary = "completed scan"
		rec.Status = models.RecordStatusOK
		if err := s.UpsertRecord(ctx, rec); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		got, err := s.GetRecord(ctx, "r-1")
		if err != nil {
			t.Fatalf("GetRecord failed: %v", err)
		}
		if got.Summary != "completed scan" || got.Status != models.RecordStatusOK {
			t.Errorf("Update not applied: %+v", got)
		}
		if !got.LastUpdated.After(firstUpdate) {
			t.Errorf("Expected last_updated to advance: %v -> %v", firstUpdate, got.LastUpdated)
		}
		if len(got.Tags) != 2 || got.Tags[0] != "catalog" || got.Tags[1] != "line3" {
			t.Errorf("Unexpected tags: %v", got.Tags)
		}
	})

	t.Run("record mutation advances project updated_at", func(t *testing.T) {
		before, _ := s.GetProject(ctx, "site-b")
		time.Sleep(5 * time.Millisecond)
		rec := &models.Record{ProjectID: "site-b", Collection: models.CollectionSnapshot, Status: models.RecordStatusOK}
		if err := s.UpsertRecord(ctx, rec); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		after, _ := s.GetProject(ctx, "site-b")
		if !after.UpdatedAt.After(before.UpdatedAt) {
			t.Errorf("Expected project updated_at to advance: %v -> %v", before.UpdatedAt, after.UpdatedAt)
		}
	})

	t.Run("project_id is immutable", func(t *testing.T) {
		createTestProject(t, s, "site-c")
		rec := &models.Record{ID: "r-1", ProjectID: "site-c", Collection: models.CollectionTagCatalog}
		err := s.UpsertRecord(ctx, rec)
		if !errors.Is(err, ErrConflict) {
			t.Errorf("Expected ErrConflict on project change, got %v", err)
		}
	})
}

func TestFindRecords(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestProject(t, s, "site-d")
	createTestProject(t, s, "site-e")

	seed := []*models.Record{
		{ID: "ev-1", ProjectID: "site-d", Collection: models.CollectionMonitorEvent, Tags: []string{"Motor1", "change"}, Status: models.RecordStatusOK},
		{ID: "ev-2", ProjectID: "site-d", Collection: models.CollectionMonitorEvent, Tags: []string{"Motor2", "change"}, Status: models.RecordStatusOK},
		{ID: "cat-1", ProjectID: "site-d", Collection: models.CollectionTagCatalog, Tags: []string{"catalog"}, Status: models.RecordStatusError},
		{ID: "ev-3", ProjectID: "site-e", Collection: models.CollectionMonitorEvent, Tags: []string{"Motor1", "recovered"}, Status: models.RecordStatusOK},
	}
	for _, rec := range seed {
		if err := s.UpsertRecord(ctx, rec); err != nil {
			t.Fatalf("Seeding %s failed: %v", rec.ID, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Run("orders by last_updated descending", func(t *testing.T) {
		got, err := s.FindRecords(ctx, RecordFilter{ProjectID: "site-d"})
		if err != nil {
			t.Fatalf("FindRecords failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("Expected 3 records, got %d", len(got))
		}
		want := []string{"cat-1", "ev-2", "ev-1"}
		for i, id := range want {
			if got[i].ID != id {
				t.Errorf("Position %d: expected %s, got %s", i, id, got[i].ID)
			}
		}
	})

	t.Run("keyword containment over tag set", func(t *testing.T) {
		got, err := s.FindRecords(ctx, RecordFilter{Collection: models.CollectionMonitorEvent, TagKeyword: "Motor1"})
		if err != nil {
			t.Fatalf("FindRecords failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 records tagged Motor1, got %d", len(got))
		}
		for _, rec := range got {
			if rec.Collection != models.CollectionMonitorEvent {
				t.Errorf("Unexpected collection %s", rec.Collection)
			}
		}
	})

	t.Run("keyword is not substring match", func(t *testing.T) {
		got, err := s.FindRecords(ctx, RecordFilter{TagKeyword: "Motor"})
		if err != nil {
			t.Fatalf("FindRecords failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Expected no records for partial keyword, got %d", len(got))
		}
	})

	t.Run("status filter", func(t *testing.T) {
		got, err := s.FindRecords(ctx, RecordFilter{ProjectID: "site-d", Status: models.RecordStatusError})
		if err != nil {
			t.Fatalf("FindRecords failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != "cat-1" {
			t.Errorf("Expected only cat-1, got %+v", got)
		}
	})
}
