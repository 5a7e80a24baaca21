package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sgtscottadams/ab-poller/internal/decode"
	"github.com/Sgtscottadams/ab-poller/internal/models"
	"github.com/Sgtscottadams/ab-poller/internal/plc"
	"github.com/Sgtscottadams/ab-poller/internal/plc/plcsim"
)

// memSink records upserts in memory so tests can inspect persistence
// without a database.
type memSink struct {
	mu      sync.Mutex
	records map[string]*models.Record
	fail    error
}

func newMemSink() *memSink {
	return &memSink{records: make(map[string]*models.Record)}
}

func (m *memSink) UpsertRecord(ctx context.Context, rec *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	clone := *rec
	m.records[rec.ID] = &clone
	return nil
}

func (m *memSink) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memSink) byKind(kind models.ChangeKind) []*models.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Record
	for _, rec := range m.records {
		for _, tag := range rec.Tags {
			if tag == string(kind) {
				out = append(out, rec)
			}
		}
	}
	return out
}

func dintBytes(v int32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func counterDescriptor() models.TagDescriptor {
	return models.TagDescriptor{
		Name:     "Counter",
		DataType: models.DataTypeDInt,
		TypeCode: decode.TypeDINT,
		Scope:    models.ScopeController,
	}
}

func testSession(t *testing.T, dev *plcsim.Device, sink RecordSink, tags ...models.TagDescriptor) *Session {
	t.Helper()
	s := NewSession(dev, sink, "proj-1", "192.168.1.10", 0, tags, Config{
		PollInterval:     10 * time.Millisecond,
		FailureThreshold: 3,
		BackoffBase:      time.Millisecond,
		BackoffMax:       5 * time.Millisecond,
	})
	if err := s.connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(s.disconnect)
	return s
}

func TestIdenticalSnapshotsEmitNoEvents(t *testing.T) {
	dev := plcsim.New()
	dev.AddTag(plc.RawTag{Name: "Counter", TypeCode: decode.TypeDINT}, dintBytes(42))
	sink := newMemSink()
	s := testSession(t, dev, sink, counterDescriptor())

	for i := 0; i < 5; i++ {
		if err := s.pollOnce(context.Background()); err != nil {
			t.Fatalf("Tick %d failed: %v", i, err)
		}
	}

	if sink.count() != 0 {
		t.Errorf("Expected zero events for identical snapshots, got %d", sink.count())
	}
}

func TestSingleChangeEmitsExactlyOneEvent(t *testing.T) {
	dev := plcsim.New()
	dev.AddTag(plc.RawTag{Name: "Counter", TypeCode: decode.TypeDINT}, dintBytes(10))
	sink := newMemSink()
	s := testSession(t, dev, sink, counterDescriptor())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.pollOnce(ctx); err != nil {
			t.Fatalf("Tick failed: %v", err)
		}
	}

	dev.SetValue("Counter", dintBytes(11))
	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	changes := sink.byKind(models.ChangeKindValue)
	if len(changes) != 1 {
		t.Fatalf("Expected exactly 1 change event, got %d", len(changes))
	}
	if sink.count() != 1 {
		t.Errorf("Expected no other events, got %d records", sink.count())
	}

	var ev models.ChangeEvent
	if err := json.Unmarshal(changes[0].Payload, &ev); err != nil {
		t.Fatalf("Bad payload: %v", err)
	}
	if ev.Old == nil || ev.New == nil {
		t.Fatal("Expected both old and new values")
	}
	// JSON numbers decode as float64.
	if ev.Old.Value.(float64) != 10 || ev.New.Value.(float64) != 11 {
		t.Errorf("Expected 10 -> 11, got %v -> %v", ev.Old.Value, ev.New.Value)
	}
}

func TestSameTickEventsPersistSeparately(t *testing.T) {
	// With a threshold of one, a single failing tick raises read_error
	// and stale for the same tag at the same instant. Both must land in
	// the store as distinct records.
	dev := plcsim.New()
	dev.AddTag(plc.RawTag{Name: "Counter", TypeCode: decode.TypeDINT}, dintBytes(10))
	sink := newMemSink()
	s := NewSession(dev, sink, "proj-1", "192.168.1.10", 0,
		[]models.TagDescriptor{counterDescriptor()}, Config{
			PollInterval:     10 * time.Millisecond,
			FailureThreshold: 1,
			BackoffBase:      time.Millisecond,
			BackoffMax:       5 * time.Millisecond,
		})
	ctx := context.Background()
	if err := s.connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(s.disconnect)

	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("Baseline tick failed: %v", err)
	}
	dev.FailRead("Counter", errors.New("cip path segment error"))
	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("Failure tick failed: %v", err)
	}

	if sink.count() != 2 {
		t.Fatalf("Expected 2 persisted events, got %d", sink.count())
	}
	if got := len(sink.byKind(models.ChangeKindReadError)); got != 1 {
		t.Errorf("Expected 1 read_error record, got %d", got)
	}
	if got := len(sink.byKind(models.ChangeKindStale)); got != 1 {
		t.Errorf("Expected 1 stale record, got %d", got)
	}
}

func TestFailingTagGoesStaleAndRecovers(t *testing.T) {
	dev := plcsim.New()
	dev.AddTag(plc.RawTag{Name: "Counter", TypeCode: decode.TypeDINT}, dintBytes(10))
	sink := newMemSink()
	s := testSession(t, dev, sink, counterDescriptor())

	ctx := context.Background()
	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("Baseline tick failed: %v", err)
	}

	dev.FailRead("Counter", errors.New("cip path segment error"))
	for i := 0; i < 3; i++ {
		if err := s.pollOnce(ctx); err != nil {
			t.Fatalf("Failure tick %d failed: %v", i, err)
		}
	}

	if !s.isStale("Counter") {
		t.Fatal("Expected Counter to be stale after threshold failures")
	}
	if len(sink.byKind(models.ChangeKindReadError)) != 1 {
		t.Errorf("Expected 1 read_error event, got %d", len(sink.byKind(models.ChangeKindReadError)))
	}
	if len(sink.byKind(models.ChangeKindStale)) != 1 {
		t.Errorf("Expected 1 stale event, got %d", len(sink.byKind(models.ChangeKindStale)))
	}

	// Recovery with a different value: must be a recovery transition,
	// not a value change against the pre-failure snapshot.
	dev.FailRead("Counter", nil)
	dev.SetValue("Counter", dintBytes(99))
	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("Recovery tick failed: %v", err)
	}

	if s.isStale("Counter") {
		t.Error("Expected staleness cleared after one successful read")
	}
	if len(sink.byKind(models.ChangeKindRecovered)) != 1 {
		t.Errorf("Expected 1 recovered event, got %d", len(sink.byKind(models.ChangeKindRecovered)))
	}
	if len(sink.byKind(models.ChangeKindValue)) != 0 {
		t.Error("Recovery must not be reported as a value change")
	}

	// The recovered value is the new baseline: an identical follow-up
	// read emits nothing further.
	before := sink.count()
	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("Post-recovery tick failed: %v", err)
	}
	if sink.count() != before {
		t.Error("Expected no events after recovery baseline")
	}
}

func TestGlobalOutageResetsBaseline(t *testing.T) {
	dev := plcsim.New()
	dev.AddTag(plc.RawTag{Name: "Counter", TypeCode: decode.TypeDINT}, dintBytes(10))
	sink := newMemSink()
	s := testSession(t, dev, sink, counterDescriptor())

	ctx := context.Background()
	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("Baseline tick failed: %v", err)
	}

	// Value changes during the outage; recovery must not report it as
	// a change against the pre-outage snapshot.
	dev.SetOffline(true)
	dev.SetValue("Counter", dintBytes(77))
	go func() {
		time.Sleep(20 * time.Millisecond)
		dev.SetOffline(false)
	}()

	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("Expected reconnect to succeed, got %v", err)
	}

	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("Post-outage tick failed: %v", err)
	}
	if len(sink.byKind(models.ChangeKindValue)) != 0 {
		t.Error("Expected no change events after baseline reset")
	}

	// A change after the new baseline is reported normally.
	dev.SetValue("Counter", dintBytes(78))
	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(sink.byKind(models.ChangeKindValue)) != 1 {
		t.Errorf("Expected 1 change event after new baseline, got %d", len(sink.byKind(models.ChangeKindValue)))
	}
}

func TestStopFlushesPendingEvents(t *testing.T) {
	dev := plcsim.New()
	dev.AddTag(plc.RawTag{Name: "Counter", TypeCode: decode.TypeDINT}, dintBytes(10))
	sink := newMemSink()
	s := testSession(t, dev, sink, counterDescriptor())

	ctx := context.Background()
	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("Baseline tick failed: %v", err)
	}

	// Store outage: events detected this tick stay pending.
	sink.setFail(errors.New("disk full"))
	dev.SetValue("Counter", dintBytes(11))
	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if sink.count() != 0 {
		t.Fatalf("Expected nothing persisted during store outage, got %d", sink.count())
	}
	if len(s.pending) != 1 {
		t.Fatalf("Expected 1 pending event, got %d", len(s.pending))
	}

	// Flush once the store is back: exactly one record, no duplicates.
	sink.setFail(nil)
	s.flush(ctx)
	s.flush(ctx)
	if sink.count() != 1 {
		t.Errorf("Expected exactly 1 persisted event after flush, got %d", sink.count())
	}
	if len(s.pending) != 0 {
		t.Errorf("Expected pending drained, got %d", len(s.pending))
	}
}

func TestRunStopsCleanly(t *testing.T) {
	dev := plcsim.New()
	dev.AddTag(plc.RawTag{Name: "Counter", TypeCode: decode.TypeDINT}, dintBytes(10))
	sink := newMemSink()
	s := NewSession(dev, sink, "proj-1", "192.168.1.10", 0,
		[]models.TagDescriptor{counterDescriptor()},
		Config{PollInterval: 5 * time.Millisecond, BackoffBase: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	time.Sleep(30 * time.Millisecond)
	dev.SetValue("Counter", dintBytes(20))
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Session did not stop within bound")
	}

	st := s.Status()
	if st.Status != models.SessionStatusStopped {
		t.Errorf("Expected stopped status, got %s", st.Status)
	}
	if st.TickCount == 0 {
		t.Error("Expected at least one tick")
	}
	if len(sink.byKind(models.ChangeKindValue)) != 1 {
		t.Errorf("Expected the change persisted before exit, got %d", len(sink.byKind(models.ChangeKindValue)))
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	dev := plcsim.New()
	dev.AddTag(plc.RawTag{Name: "Counter", TypeCode: decode.TypeDINT}, dintBytes(10))
	sink := newMemSink()
	s := testSession(t, dev, sink, counterDescriptor())

	ch, cancel := s.Subscribe()
	defer cancel()

	ctx := context.Background()
	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("Baseline tick failed: %v", err)
	}
	dev.SetValue("Counter", dintBytes(11))
	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Kind != models.ChangeKindValue || ev.TagName != "Counter" {
			t.Errorf("Unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a change event on the subscription")
	}
}
