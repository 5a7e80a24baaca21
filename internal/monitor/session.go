// Package monitor polls a subscribed tag subset, diffs decoded values
// against the last snapshot, and flushes detected changes into the
// knowledge store as monitor_event records.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sgtscottadams/ab-poller/internal/decode"
	"github.com/Sgtscottadams/ab-poller/internal/models"
	"github.com/Sgtscottadams/ab-poller/internal/plc"
)

// RecordSink is the slice of the knowledge store the monitor needs.
type RecordSink interface {
	UpsertRecord(ctx context.Context, rec *models.Record) error
}

// Config tunes one monitor session. Zero fields take defaults.
type Config struct {
	// PollInterval is the tick cadence.
	PollInterval time.Duration
	// FailureThreshold is how many consecutive per-tag read failures
	// mark a tag stale and exclude it from change comparison.
	FailureThreshold int
	// BackoffBase and BackoffMax bound the reconnect schedule after a
	// global transport loss.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// EventBuffer sizes subscriber channels.
	EventBuffer int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = time.Minute
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
	return c
}

// Session is one live monitoring run against one controller
// connection. Poll state (snapshot, failure counters, pending events)
// is owned by the poll goroutine and never persisted; only detected
// changes reach the store.
type Session struct {
	id        string
	projectID string
	address   string
	slot      int
	driver    plc.Driver
	sink      RecordSink
	cfg       Config
	tags      []models.TagDescriptor
	names     []string
	byName    map[string]*models.TagDescriptor

	// Poll-goroutine state.
	conn     plc.Connection
	snapshot map[string]*models.TagValue
	failures map[string]int
	pending  []models.ChangeEvent

	mu         sync.RWMutex
	status     models.SessionStatus
	stale      map[string]bool
	tickCount  int
	eventCount int
	startedAt  time.Time
	lastTick   time.Time
	lastError  string

	subsMu sync.Mutex
	subs   map[chan models.ChangeEvent]struct{}

	done chan struct{}
}

// NewSession prepares a session over the given subscribed tags.
func NewSession(driver plc.Driver, sink RecordSink, projectID, address string, slot int, tags []models.TagDescriptor, cfg Config) *Session {
	s := &Session{
		id:        uuid.New().String(),
		projectID: projectID,
		address:   address,
		slot:      slot,
		driver:    driver,
		sink:      sink,
		cfg:       cfg.withDefaults(),
		tags:      tags,
		byName:    make(map[string]*models.TagDescriptor, len(tags)),
		snapshot:  make(map[string]*models.TagValue, len(tags)),
		failures:  make(map[string]int, len(tags)),
		stale:     make(map[string]bool),
		status:    models.SessionStatusIdle,
		subs:      make(map[chan models.ChangeEvent]struct{}),
		done:      make(chan struct{}),
	}
	for i := range tags {
		s.names = append(s.names, tags[i].Name)
		s.byName[tags[i].Name] = &tags[i]
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Done closes when the poll loop has fully stopped and flushed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Status returns an externally safe snapshot of the session.
func (s *Session) Status() *models.MonitorSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := &models.MonitorSession{
		ID:             s.id,
		ProjectID:      s.projectID,
		Address:        s.address,
		Slot:           s.slot,
		Status:         s.status,
		SubscribedTags: append([]string(nil), s.names...),
		PollIntervalMs: s.cfg.PollInterval.Milliseconds(),
		TickCount:      s.tickCount,
		EventCount:     s.eventCount,
		StartedAt:      s.startedAt,
		LastTick:       s.lastTick,
		LastError:      s.lastError,
	}
	for name := range s.stale {
		out.StaleTags = append(out.StaleTags, name)
	}
	return out
}

// Subscribe registers a change-event listener. Slow listeners drop
// events rather than stall the poll loop; the store remains the
// authoritative log.
func (s *Session) Subscribe() (<-chan models.ChangeEvent, func()) {
	ch := make(chan models.ChangeEvent, s.cfg.EventBuffer)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()
	cancel := func() {
		s.subsMu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.subsMu.Unlock()
	}
	return ch, cancel
}

// Run drives the poll loop until ctx is cancelled. Cancellation is
// observed between ticks only; already-detected events are flushed
// before returning.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	defer s.closeSubscribers()

	s.setStatus(models.SessionStatusIdle, "")
	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		if ctx.Err() != nil {
			s.setStatus(models.SessionStatusStopped, "")
			return
		}
		fmt.Printf("[Monitor %s] Initial connect failed: %v\n", s.shortID(), err)
		if err := s.reconnect(ctx); err != nil {
			s.setStatus(models.SessionStatusError, err.Error())
			return
		}
	}
	defer s.disconnect()

	s.setStatus(models.SessionStatusPolling, "")
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background())
			s.setStatus(models.SessionStatusStopped, "")
			fmt.Printf("[Monitor %s] Stopped after %d ticks, %d events\n", s.shortID(), s.ticks(), s.events())
			return
		case <-ticker.C:
			if err := s.pollOnce(ctx); err != nil {
				if ctx.Err() != nil {
					s.flush(context.Background())
					s.setStatus(models.SessionStatusStopped, "")
					return
				}
				s.setStatus(models.SessionStatusError, err.Error())
				return
			}
		}
	}
}

func (s *Session) connect(ctx context.Context) error {
	conn, err := s.driver.Connect(ctx, s.address, s.slot)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *Session) disconnect() {
	if s.conn != nil {
		s.conn.Disconnect()
		s.conn = nil
	}
}

// pollOnce is one tick: read batch, decode, diff, persist.
func (s *Session) pollOnce(ctx context.Context) error {
	s.mu.Lock()
	s.tickCount++
	s.lastTick = time.Now()
	s.mu.Unlock()

	results, err := s.conn.Read(ctx, s.names)
	if err != nil {
		if plc.IsConnError(err) {
			fmt.Printf("[Monitor %s] Transport lost: %v\n", s.shortID(), err)
			return s.reconnect(ctx)
		}
		return err
	}

	now := time.Now()
	for _, name := range s.names {
		s.observe(name, results[name], now)
	}

	s.flush(ctx)
	return nil
}

// observe folds one tag's read result into the session state.
func (s *Session) observe(name string, res plc.ReadResult, now time.Time) {
	desc := s.byName[name]

	if res.Err != nil {
		s.observeFailure(name, res.Err.Error(), now)
		return
	}

	value, err := decode.DecodeTag(desc, res.Raw)
	if err != nil {
		// Decode failures are reported per tag and never abort the
		// batch; the next tick simply reads again.
		s.observeFailure(name, err.Error(), now)
		return
	}

	tv := &models.TagValue{
		TagName:   name,
		DataType:  desc.DataType,
		Value:     value,
		Timestamp: now,
		Quality:   models.QualityOK,
	}

	wasStale := s.isStale(name)
	s.failures[name] = 0

	if wasStale {
		// Recovery from stale is an explicit transition, not a value
		// diff: the tag rejoins comparison with a fresh baseline.
		s.clearStale(name)
		s.emit(models.ChangeEvent{
			SessionID: s.id,
			TagName:   name,
			Kind:      models.ChangeKindRecovered,
			New:       tv,
			Timestamp: now,
		})
		s.snapshot[name] = tv
		return
	}

	prev, seen := s.snapshot[name]
	if !seen {
		// Baseline reading: nothing to compare against yet.
		s.snapshot[name] = tv
		return
	}
	if !tv.EqualValue(prev) {
		s.emit(models.ChangeEvent{
			SessionID: s.id,
			TagName:   name,
			Kind:      models.ChangeKindValue,
			Old:       prev,
			New:       tv,
			Timestamp: now,
		})
		s.snapshot[name] = tv
	}
}

func (s *Session) observeFailure(name, reason string, now time.Time) {
	if s.isStale(name) {
		// Already excluded; keep counting quietly until it recovers.
		s.failures[name]++
		return
	}

	s.failures[name]++
	tv := &models.TagValue{
		TagName:   name,
		DataType:  s.byName[name].DataType,
		Timestamp: now,
		Quality:   models.QualityReadError,
		Error:     reason,
	}

	if s.failures[name] == 1 {
		s.emit(models.ChangeEvent{
			SessionID: s.id,
			TagName:   name,
			Kind:      models.ChangeKindReadError,
			Old:       s.snapshot[name],
			New:       tv,
			Timestamp: now,
		})
	}

	if s.failures[name] >= s.cfg.FailureThreshold {
		s.markStale(name)
		tv.Quality = models.QualityStale
		s.emit(models.ChangeEvent{
			SessionID: s.id,
			TagName:   name,
			Kind:      models.ChangeKindStale,
			New:       tv,
			Timestamp: now,
		})
		fmt.Printf("[Monitor %s] Tag %s stale after %d failures\n", s.shortID(), name, s.failures[name])
	}
}

// reconnect retries the controller link with bounded exponential
// backoff. On success the baseline snapshot is reset so the outage does
// not masquerade as a change on every tag.
func (s *Session) reconnect(ctx context.Context) error {
	s.setStatus(models.SessionStatusReconnecting, "")
	s.disconnect()

	backoff := s.cfg.BackoffBase
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err := s.connect(ctx); err == nil {
			s.snapshot = make(map[string]*models.TagValue, len(s.names))
			for name := range s.failures {
				s.failures[name] = 0
			}
			s.clearAllStale()
			s.setStatus(models.SessionStatusPolling, "")
			fmt.Printf("[Monitor %s] Reconnected, baseline reset\n", s.shortID())
			return nil
		} else {
			fmt.Printf("[Monitor %s] Reconnect failed, next attempt in %s: %v\n", s.shortID(), backoff, err)
		}

		backoff *= 2
		if backoff > s.cfg.BackoffMax {
			backoff = s.cfg.BackoffMax
		}
	}
}

// emit assigns the event its ID, queues it for persistence and fans it
// out to subscribers. IDs are a per-session sequence: tag timestamps are
// not unique (one tick can raise read_error and stale for the same tag
// at the same instant) so the clock cannot serve as an identifier.
func (s *Session) emit(ev models.ChangeEvent) {
	s.mu.Lock()
	s.eventCount++
	ev.ID = fmt.Sprintf("%s-%d", s.id, s.eventCount)
	s.mu.Unlock()

	s.pending = append(s.pending, ev)

	s.subsMu.Lock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.subsMu.Unlock()
}

// flush persists pending events as monitor_event records. Event IDs are
// assigned once at detection time and the store upserts by ID, so a
// retried flush never duplicates an event.
func (s *Session) flush(ctx context.Context) {
	remaining := s.pending[:0]
	for i := range s.pending {
		ev := &s.pending[i]
		rec, err := eventRecord(s.projectID, ev)
		if err == nil {
			err = s.sink.UpsertRecord(ctx, rec)
		}
		if err != nil {
			fmt.Printf("[Monitor %s] Failed to persist event for %s: %v\n", s.shortID(), ev.TagName, err)
			remaining = append(remaining, *ev)
		}
	}
	s.pending = remaining
}

// eventRecord shapes one change event as a knowledge-store record.
func eventRecord(projectID string, ev *models.ChangeEvent) (*models.Record, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encoding event for %s: %w", ev.TagName, err)
	}
	summary := fmt.Sprintf("%s: %s", ev.TagName, ev.Kind)
	if ev.Kind == models.ChangeKindValue && ev.Old != nil && ev.New != nil {
		summary = fmt.Sprintf("%s: %v -> %v", ev.TagName, ev.Old.Value, ev.New.Value)
	}
	return &models.Record{
		ID:         ev.ID,
		ProjectID:  projectID,
		Collection: models.CollectionMonitorEvent,
		Payload:    payload,
		Summary:    summary,
		Tags:       []string{ev.TagName, string(ev.Kind)},
		Status:     models.RecordStatusOK,
	}, nil
}

func (s *Session) setStatus(status models.SessionStatus, errMsg string) {
	s.mu.Lock()
	s.status = status
	if errMsg != "" {
		s.lastError = errMsg
	}
	s.mu.Unlock()
}

func (s *Session) isStale(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale[name]
}

func (s *Session) markStale(name string) {
	s.mu.Lock()
	s.stale[name] = true
	s.mu.Unlock()
}

func (s *Session) clearStale(name string) {
	s.mu.Lock()
	delete(s.stale, name)
	s.mu.Unlock()
}

func (s *Session) clearAllStale() {
	s.mu.Lock()
	s.stale = make(map[string]bool)
	s.mu.Unlock()
}

func (s *Session) closeSubscribers() {
	s.subsMu.Lock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	s.subsMu.Unlock()
}

func (s *Session) ticks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tickCount
}

func (s *Session) events() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eventCount
}

func (s *Session) shortID() string {
	if len(s.id) >= 8 {
		return s.id[:8]
	}
	return s.id
}
