// testutil.go - Shared fixtures for handler and integration tests
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Sgtscottadams/ab-poller/internal/decode"
	"github.com/Sgtscottadams/ab-poller/internal/models"
	"github.com/Sgtscottadams/ab-poller/internal/plc"
	"github.com/Sgtscottadams/ab-poller/internal/plc/plcsim"
	"github.com/Sgtscottadams/ab-poller/internal/store"
)

// NewTestStore opens a throwaway knowledge store under t.TempDir.
func NewTestStore(t *testing.T) *store.KnowledgeStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "knowledge.db"))
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// NewTestProject creates a project and returns it.
func NewTestProject(t *testing.T, s *store.KnowledgeStore, name string) *models.Project {
	t.Helper()
	p := &models.Project{Name: name, Client: "Test Client", Location: "Line 3"}
	if err := s.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("Failed to create test project: %v", err)
	}
	return p
}

// NewSimDevice builds a simulated controller with a small
// representative tag table: a DINT counter, a REAL in a program scope,
// and a two-member UDT.
func NewSimDevice() *plcsim.Device {
	dev := plcsim.New()
	dev.AddTag(plc.RawTag{Name: "Counter", TypeCode: decode.TypeDINT}, []byte{42, 0, 0, 0})
	dev.AddTag(plc.RawTag{Name: "Motor_Speed", TypeCode: decode.TypeREAL, Program: "MainProgram"},
		[]byte{0x00, 0x00, 0xC8, 0x42}) // 100.0
	dev.AddTemplate(0x8FA2, []plc.Member{
		{Name: "Running", TypeCode: decode.TypeBOOL},
		{Name: "Speed", TypeCode: decode.TypeREAL},
	})
	dev.AddTag(plc.RawTag{Name: "Motor_1", TypeCode: 0x8FA2, StructName: "MOTOR_DATA"},
		[]byte{0x01, 0x00, 0x00, 0x48, 0x42}) // Running=true, Speed=50.0
	return dev
}
