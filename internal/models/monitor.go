package models

import "time"

// SessionStatus is the state of a monitor session's poll loop.
type SessionStatus string

const (
	SessionStatusIdle         SessionStatus = "idle"
	SessionStatusPolling      SessionStatus = "polling"
	SessionStatusReconnecting SessionStatus = "reconnecting"
	SessionStatusStopped      SessionStatus = "stopped"
	SessionStatusError        SessionStatus = "error"
)

// ChangeKind classifies a monitor event.
type ChangeKind string

const (
	// ChangeKindValue is an observed value difference between two ticks.
	ChangeKindValue ChangeKind = "change"
	// ChangeKindReadError is a per-tag read failure on one tick.
	ChangeKindReadError ChangeKind = "read_error"
	// ChangeKindStale marks a tag that exceeded the failure threshold
	// and is excluded from diffing until it reads successfully again.
	ChangeKindStale ChangeKind = "stale"
	// ChangeKindRecovered marks a stale tag's first successful read.
	ChangeKindRecovered ChangeKind = "recovered"
)

// ChangeEvent is one detected transition for a monitored tag.
// Old is nil for the first reading after a baseline reset.
type ChangeEvent struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	TagName   string     `json:"tag_name"`
	Kind      ChangeKind `json:"kind"`
	Old       *TagValue  `json:"old,omitempty"`
	New       *TagValue  `json:"new,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// MonitorSession is the externally visible status of one live monitor
// run. The poll state itself (snapshots, failure counters) lives inside
// the monitor package and is never persisted.
type MonitorSession struct {
	ID             string        `json:"id"`
	ProjectID      string        `json:"project_id"`
	Address        string        `json:"address"`
	Slot           int           `json:"slot"`
	Status         SessionStatus `json:"status"`
	SubscribedTags []string      `json:"subscribed_tags"`
	PollIntervalMs int64         `json:"poll_interval_ms"`
	TickCount      int           `json:"tick_count"`
	EventCount     int           `json:"event_count"`
	StaleTags      []string      `json:"stale_tags,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	LastTick       time.Time     `json:"last_tick,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
}
