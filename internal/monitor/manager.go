package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Sgtscottadams/ab-poller/internal/models"
	"github.com/Sgtscottadams/ab-poller/internal/plc"
)

// Manager owns the active monitor sessions. One controller connection
// supports a single active session; starting a second monitor against
// the same address fails until the first is stopped.
type Manager struct {
	driver plc.Driver
	sink   RecordSink

	mu       sync.RWMutex
	sessions map[string]*managed
}

type managed struct {
	session *Session
	cancel  context.CancelFunc
}

// NewManager creates a session manager over one driver and store.
func NewManager(driver plc.Driver, sink RecordSink) *Manager {
	return &Manager{
		driver:   driver,
		sink:     sink,
		sessions: make(map[string]*managed),
	}
}

// Start launches a monitor session in the background and returns its
// initial status.
func (m *Manager) Start(projectID, address string, slot int, tags []models.TagDescriptor, cfg Config) (*models.MonitorSession, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("monitor start: no subscribed tags")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.sessions {
		st := existing.session.Status()
		if st.Address == address && st.Status != models.SessionStatusStopped && st.Status != models.SessionStatusError {
			return nil, fmt.Errorf("monitor start: controller %s already has an active session %s", address, st.ID)
		}
	}

	session := NewSession(m.driver, m.sink, projectID, address, slot, tags, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	m.sessions[session.ID()] = &managed{session: session, cancel: cancel}

	go session.Run(ctx)
	fmt.Printf("[Manager] Started monitor %s on %s (%d tags)\n", session.shortID(), address, len(tags))
	return session.Status(), nil
}

// Get returns the status of one session.
func (m *Manager) Get(id string) (*models.MonitorSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return entry.session.Status(), true
}

// List returns the status of every known session.
func (m *Manager) List() []*models.MonitorSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.MonitorSession, 0, len(m.sessions))
	for _, entry := range m.sessions {
		out = append(out, entry.session.Status())
	}
	return out
}

// Subscribe attaches a change-event listener to a running session.
func (m *Manager) Subscribe(id string) (<-chan models.ChangeEvent, func(), bool) {
	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	ch, cancel := entry.session.Subscribe()
	return ch, cancel, true
}

// Stop cancels a session and waits for it to flush and exit, bounded
// by one poll interval plus in-flight read/decode time.
func (m *Manager) Stop(id string) bool {
	m.mu.Lock()
	entry, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	entry.cancel()
	interval := time.Duration(entry.session.Status().PollIntervalMs) * time.Millisecond
	select {
	case <-entry.session.Done():
	case <-time.After(2*interval + 5*time.Second):
		fmt.Printf("[Manager] Session %s did not stop within bound\n", entry.session.shortID())
	}
	return true
}

// Shutdown stops every session concurrently.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	g, _ := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			m.Stop(id)
			return nil
		})
	}
	return g.Wait()
}
