package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Artifact is the metadata for one emitted report file.
type Artifact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Format    Format    `json:"format"`
	Size      int64     `json:"size"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// ArtifactStore writes export files into the scans directory and keeps
// their metadata so records can link a file_path.
type ArtifactStore struct {
	mu        sync.RWMutex
	dir       string
	artifacts map[string]*Artifact
}

// NewArtifactStore creates the scans directory if needed.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating scans directory: %w", err)
	}
	return &ArtifactStore{
		dir:       dir,
		artifacts: make(map[string]*Artifact),
	}, nil
}

// Save writes one report under its file name and records its metadata.
func (s *ArtifactStore) Save(name string, format Format, data []byte) (*Artifact, error) {
	if name == "" {
		return nil, fmt.Errorf("artifact name is empty")
	}
	// Names come from request-supplied labels; anything that resolves
	// outside the scans directory is rejected, not cleaned.
	if name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("artifact name %q contains path elements", name)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("writing artifact: %w", err)
	}

	artifact := &Artifact{
		ID:        uuid.New().String(),
		Name:      name,
		Format:    format,
		Size:      int64(len(data)),
		Path:      path,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[artifact.ID] = artifact
	return artifact, nil
}

// Get retrieves artifact metadata by ID.
func (s *ArtifactStore) Get(id string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifact, ok := s.artifacts[id]
	if !ok {
		return nil, fmt.Errorf("artifact not found: %s", id)
	}
	return artifact, nil
}

// List returns the most recent artifacts.
func (s *ArtifactStore) List(limit int) []*Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*Artifact
	for _, a := range s.artifacts {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}

// Delete removes an artifact and its file.
func (s *ArtifactStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	artifact, ok := s.artifacts[id]
	if !ok {
		return fmt.Errorf("artifact not found: %s", id)
	}
	if err := os.Remove(artifact.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting artifact file: %w", err)
	}
	delete(s.artifacts, id)
	return nil
}
