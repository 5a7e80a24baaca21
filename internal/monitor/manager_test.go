package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/Sgtscottadams/ab-poller/internal/decode"
	"github.com/Sgtscottadams/ab-poller/internal/models"
	"github.com/Sgtscottadams/ab-poller/internal/plc"
	"github.com/Sgtscottadams/ab-poller/internal/plc/plcsim"
)

func managerFixture(t *testing.T) (*Manager, *plcsim.Device, *memSink) {
	t.Helper()
	dev := plcsim.New()
	dev.AddTag(plc.RawTag{Name: "Counter", TypeCode: decode.TypeDINT}, dintBytes(1))
	sink := newMemSink()
	return NewManager(dev, sink), dev, sink
}

func TestManagerStartAndStop(t *testing.T) {
	mgr, _, _ := managerFixture(t)

	cfg := Config{PollInterval: 5 * time.Millisecond}
	st, err := mgr.Start("proj-1", "192.168.1.10", 0, []models.TagDescriptor{counterDescriptor()}, cfg)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if st.ID == "" {
		t.Fatal("Expected a session ID")
	}

	got, ok := mgr.Get(st.ID)
	if !ok {
		t.Fatal("Expected session to be known")
	}
	if got.Address != "192.168.1.10" {
		t.Errorf("Unexpected address: %s", got.Address)
	}
	if len(mgr.List()) != 1 {
		t.Errorf("Expected 1 session listed, got %d", len(mgr.List()))
	}

	if !mgr.Stop(st.ID) {
		t.Fatal("Expected Stop to find the session")
	}
	if _, ok := mgr.Get(st.ID); ok {
		t.Error("Expected session removed after stop")
	}
	if mgr.Stop(st.ID) {
		t.Error("Expected second Stop to report unknown session")
	}
}

func TestManagerRejectsSecondSessionOnSameController(t *testing.T) {
	mgr, _, _ := managerFixture(t)

	cfg := Config{PollInterval: 5 * time.Millisecond}
	st, err := mgr.Start("proj-1", "192.168.1.10", 0, []models.TagDescriptor{counterDescriptor()}, cfg)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop(st.ID)

	if _, err := mgr.Start("proj-1", "192.168.1.10", 0, []models.TagDescriptor{counterDescriptor()}, cfg); err == nil {
		t.Fatal("Expected second session on same controller to be rejected")
	}

	// A different controller is fine.
	st2, err := mgr.Start("proj-1", "192.168.1.11", 0, []models.TagDescriptor{counterDescriptor()}, cfg)
	if err != nil {
		t.Fatalf("Expected session on second controller, got %v", err)
	}
	mgr.Stop(st2.ID)
}

func TestManagerRejectsEmptyTagList(t *testing.T) {
	mgr, _, _ := managerFixture(t)
	if _, err := mgr.Start("proj-1", "192.168.1.10", 0, nil, Config{}); err == nil {
		t.Fatal("Expected error for empty tag list")
	}
}

func TestManagerShutdown(t *testing.T) {
	mgr, _, _ := managerFixture(t)

	cfg := Config{PollInterval: 5 * time.Millisecond}
	if _, err := mgr.Start("proj-1", "192.168.1.10", 0, []models.TagDescriptor{counterDescriptor()}, cfg); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := mgr.Start("proj-1", "192.168.1.11", 0, []models.TagDescriptor{counterDescriptor()}, cfg); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := mgr.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if len(mgr.List()) != 0 {
		t.Errorf("Expected no sessions after shutdown, got %d", len(mgr.List()))
	}
}
