// Package store persists projects and scan records in a DuckDB file:
// the durable knowledge base behind discovery, export and monitoring.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"

	"github.com/Sgtscottadams/ab-poller/internal/models"
)

// Typed store failures. Callers match with errors.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// KnowledgeStore is the durable record of everything the poller has
// learned: catalogs, snapshots and monitor events, grouped by project.
type KnowledgeStore struct {
	db     *sql.DB
	dbPath string

	// Serializes all mutations. Record writes must never interleave per
	// project; a single writer is the simplest way to guarantee it.
	writeMu sync.Mutex
}

// Open creates or opens the knowledge database at dbPath.
func Open(dbPath string) (*KnowledgeStore, error) {
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='512MB'",
			"PRAGMA threads=4",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("opening knowledge db: %w", err)
	}

	db := sql.OpenDB(connector)
	s := &KnowledgeStore{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *KnowledgeStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id         VARCHAR PRIMARY KEY,
			name       VARCHAR NOT NULL,
			client     VARCHAR,
			location   VARCHAR,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			id           VARCHAR PRIMARY KEY,
			project_id   VARCHAR NOT NULL,
			collection   VARCHAR NOT NULL,
			record_json  VARCHAR,
			summary      VARCHAR,
			tags         VARCHAR,
			status       VARCHAR NOT NULL,
			last_updated TIMESTAMP NOT NULL,
			file_path    VARCHAR
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_project ON records(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection)`,
		`CREATE INDEX IF NOT EXISTS idx_records_tags ON records(tags)`,
		`CREATE INDEX IF NOT EXISTS idx_records_status ON records(status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *KnowledgeStore) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *KnowledgeStore) Path() string {
	return s.dbPath
}

// CreateProject inserts a new project. An empty ID gets a generated
// UUID; reusing an existing ID fails with ErrConflict.
func (s *KnowledgeStore) CreateProject(ctx context.Context, p *models.Project) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE id = ?`, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("checking project %s: %w", p.ID, err)
	}
	if exists > 0 {
		return fmt.Errorf("project %s: %w", p.ID, ErrConflict)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, client, location, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Client, p.Location, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting project %s: %w", p.ID, err)
	}
	return nil
}

// GetProject fetches one project by ID.
func (s *KnowledgeStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, client, location, created_at, updated_at FROM projects WHERE id = ?`, id)
	p := &models.Project{}
	err := row.Scan(&p.ID, &p.Name, &p.Client, &p.Location, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading project %s: %w", id, err)
	}
	return p, nil
}

// ListProjects returns all projects, most recently updated first.
func (s *KnowledgeStore) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, client, location, created_at, updated_at FROM projects ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Client, &p.Location, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertRecord inserts a record when its ID is unseen, otherwise
// updates payload, summary, tags, status and file_path. ID and
// ProjectID are immutable: changing a record's project fails with
// ErrConflict, and referencing an absent project fails with
// ErrNotFound before any row is written. Every mutation advances the
// owning project's updated_at.
func (s *KnowledgeStore) UpsertRecord(ctx context.Context, rec *models.Record) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = models.RecordStatusPending
	}
	now := time.Now().UTC()

	var projectCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE id = ?`, rec.ProjectID).Scan(&projectCount); err != nil {
		return fmt.Errorf("checking project %s: %w", rec.ProjectID, err)
	}
	if projectCount == 0 {
		return fmt.Errorf("project %s: %w", rec.ProjectID, ErrNotFound)
	}

	var existingProject string
	err := s.db.QueryRowContext(ctx, `SELECT project_id FROM records WHERE id = ?`, rec.ID).Scan(&existingProject)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		rec.LastUpdated = now
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO records (id, project_id, collection, record_json, summary, tags, status, last_updated, file_path)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.ProjectID, rec.Collection, string(rec.Payload), rec.Summary,
			joinTags(rec.Tags), string(rec.Status), rec.LastUpdated, rec.FilePath)
		if err != nil {
			return fmt.Errorf("inserting record %s: %w", rec.ID, err)
		}
	case err != nil:
		return fmt.Errorf("checking record %s: %w", rec.ID, err)
	default:
		if existingProject != rec.ProjectID {
			return fmt.Errorf("record %s belongs to project %s: %w", rec.ID, existingProject, ErrConflict)
		}
		rec.LastUpdated = now
		_, err = s.db.ExecContext(ctx,
			`UPDATE records SET record_json = ?, summary = ?, tags = ?, status = ?, last_updated = ?, file_path = ?
			 WHERE id = ?`,
			string(rec.Payload), rec.Summary, joinTags(rec.Tags), string(rec.Status),
			rec.LastUpdated, rec.FilePath, rec.ID)
		if err != nil {
			return fmt.Errorf("updating record %s: %w", rec.ID, err)
		}
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, now, rec.ProjectID); err != nil {
		return fmt.Errorf("touching project %s: %w", rec.ProjectID, err)
	}
	return nil
}

// GetRecord fetches one record by ID.
func (s *KnowledgeStore) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, collection, record_json, summary, tags, status, last_updated, file_path
		 FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", id, err)
	}
	return rec, nil
}

// RecordFilter narrows a FindRecords query. Zero fields are ignored.
// TagKeyword is containment over the record's tag set, not substring.
type RecordFilter struct {
	ProjectID  string
	Collection string
	TagKeyword string
	Status     models.RecordStatus
}

// FindRecords returns matching records ordered by last_updated
// descending.
func (s *KnowledgeStore) FindRecords(ctx context.Context, f RecordFilter) ([]models.Record, error) {
	query := `SELECT id, project_id, collection, record_json, summary, tags, status, last_updated, file_path
		 FROM records WHERE 1=1`
	var args []interface{}

	if f.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, f.ProjectID)
	}
	if f.Collection != "" {
		query += ` AND collection = ?`
		args = append(args, f.Collection)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.TagKeyword != "" {
		// Exact membership in the comma-joined tag set.
		query += ` AND (',' || tags || ',') LIKE ('%,' || ? || ',%')`
		args = append(args, f.TagKeyword)
	}
	query += ` ORDER BY last_updated DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching records: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var rec models.Record
	var payload, tags string
	var status string
	if err := row.Scan(&rec.ID, &rec.ProjectID, &rec.Collection, &payload, &rec.Summary,
		&tags, &status, &rec.LastUpdated, &rec.FilePath); err != nil {
		return nil, err
	}
	if payload != "" {
		rec.Payload = json.RawMessage(payload)
	}
	rec.Tags = splitTags(tags)
	rec.Status = models.RecordStatus(status)
	return &rec, nil
}

// joinTags normalizes a tag set into the stored comma-joined form:
// deduplicated, order-preserving, commas stripped from keywords.
func joinTags(tags []string) string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(strings.ReplaceAll(t, ",", " "))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return strings.Join(out, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
