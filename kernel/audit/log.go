// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/clove-kernel/clove/lib/clock"
)

// Category is the closed set of audit log namespaces, one per
// log_* toggle in Config (spec §4.14, grounded on
// original_source/src/kernel/syscalls/audit.cpp's AuditConfig fields).
type Category string

const (
	CategorySyscalls  Category = "syscalls"
	CategorySecurity  Category = "security"
	CategoryLifecycle Category = "lifecycle"
	CategoryIPC       Category = "ipc"
	CategoryState     Category = "state"
	CategoryResource  Category = "resource"
	CategoryNetwork   Category = "network"
	CategoryWorld     Category = "world"
)

// Config controls the log's capacity and which categories are
// recorded (spec §4.14 "categories are filterable at emit time via a
// config flag set").
type Config struct {
	MaxEntries   int  `json:"max_entries"`
	LogSyscalls  bool `json:"log_syscalls"`
	LogSecurity  bool `json:"log_security"`
	LogLifecycle bool `json:"log_lifecycle"`
	LogIPC       bool `json:"log_ipc"`
	LogState     bool `json:"log_state"`
	LogResource  bool `json:"log_resource"`
	LogNetwork   bool `json:"log_network"`
	LogWorld     bool `json:"log_world"`
}

// DefaultConfig enables every category with a generous ring size.
func DefaultConfig() Config {
	return Config{
		MaxEntries: 10000, LogSyscalls: true, LogSecurity: true, LogLifecycle: true,
		LogIPC: true, LogState: true, LogResource: true, LogNetwork: true, LogWorld: true,
	}
}

func (c Config) enabled(cat Category) bool {
	switch cat {
	case CategorySyscalls:
		return c.LogSyscalls
	case CategorySecurity:
		return c.LogSecurity
	case CategoryLifecycle:
		return c.LogLifecycle
	case CategoryIPC:
		return c.LogIPC
	case CategoryState:
		return c.LogState
	case CategoryResource:
		return c.LogResource
	case CategoryNetwork:
		return c.LogNetwork
	case CategoryWorld:
		return c.LogWorld
	default:
		return true
	}
}

// Entry is one audit log record (spec §3 "Audit entry").
type Entry struct {
	SeqID     uint64          `cbor:"seq_id" json:"seq_id"`
	Timestamp time.Time       `cbor:"timestamp" json:"timestamp"`
	Category  Category        `cbor:"category" json:"category"`
	AgentID   uint32          `cbor:"agent_id" json:"agent_id"`
	Label     string          `cbor:"label" json:"label"`
	Details   json.RawMessage `cbor:"details" json:"details"`
	Success   bool            `cbor:"success" json:"success"`
}

// ReplayState is the closed enumeration of replay progress states
// (spec §4.14).
type ReplayState string

const (
	ReplayIdle      ReplayState = "IDLE"
	ReplayRunning   ReplayState = "RUNNING"
	ReplayPaused    ReplayState = "PAUSED"
	ReplayCompleted ReplayState = "COMPLETED"
	ReplayError     ReplayState = "ERROR"
)

// ReplayProgress reports the state of an in-progress or completed
// replay (spec §4.14).
type ReplayProgress struct {
	State     ReplayState `json:"state"`
	Total     int         `json:"total"`
	Current   int         `json:"current"`
	Replayed  int         `json:"replayed"`
	Skipped   int         `json:"skipped"`
	LastError string      `json:"last_error,omitempty"`
}

// Handler processes one replayed entry. Returning ErrSkip counts the
// entry as skipped rather than replayed; any other non-nil error
// aborts the replay and sets its state to ERROR.
type Handler func(Entry) error

// ErrSkip, returned by a Handler, marks an entry as intentionally
// skipped during replay.
var ErrSkip = errors.New("audit: skip entry")

// Log is the kernel's append-only execution log. Safe for concurrent
// use; owns exactly one lock (spec §5).
type Log struct {
	clock clock.Clock

	mu        sync.Mutex
	config    Config
	entries   []Entry
	nextSeqID uint64

	recording    bool
	recordedBuf  []Entry
	importBuf    []Entry
	replayCursor int
	replayHandle Handler
	progress     ReplayProgress
}

// New creates a Log with the given configuration.
func New(clk clock.Clock, config Config) *Log {
	return &Log{clock: clk, config: config, progress: ReplayProgress{State: ReplayIdle}}
}

// SetConfig replaces the log's configuration (SET_AUDIT_CONFIG).
func (l *Log) SetConfig(config Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config = config
	l.trimLocked()
}

// GetConfig returns the log's current configuration.
func (l *Log) GetConfig() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config
}

func (l *Log) trimLocked() {
	if l.config.MaxEntries > 0 && len(l.entries) > l.config.MaxEntries {
		drop := len(l.entries) - l.config.MaxEntries
		l.entries = l.entries[drop:]
	}
}

// Log appends an entry if its category is enabled, returning the
// entry's sequence id (0 if suppressed by config). While a recording
// is active, the entry is also appended to the recording buffer.
func (l *Log) Log(category Category, agentID uint32, label string, details json.RawMessage, success bool) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.config.enabled(category) {
		return 0
	}

	l.nextSeqID++
	entry := Entry{
		SeqID: l.nextSeqID, Timestamp: l.clock.Now(), Category: category,
		AgentID: agentID, Label: label, Details: details, Success: success,
	}
	l.entries = append(l.entries, entry)
	l.trimLocked()
	if l.recording {
		l.recordedBuf = append(l.recordedBuf, entry)
	}
	return entry.SeqID
}

// GetEntries returns entries with seq_id > sinceID, optionally
// filtered by category and/or agent id, oldest first, capped at
// limit (spec §4.14's GET_AUDIT_LOG; grounded on audit.cpp's
// get_entries(category*, agent_id*, since_id, limit)).
func (l *Log) GetEntries(category *Category, agentID *uint32, sinceID uint64, limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for _, e := range l.entries {
		if e.SeqID <= sinceID {
			continue
		}
		if category != nil && e.Category != *category {
			continue
		}
		if agentID != nil && e.AgentID != *agentID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// StartRecording begins capturing every subsequently logged entry
// into a separate recording buffer, independent of the ring's
// capacity (spec §4.14's start_recording).
func (l *Log) StartRecording() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recording = true
	l.recordedBuf = nil
}

// StopRecording ends the recording and returns every entry captured
// since StartRecording (spec §4.14's stop_recording).
func (l *Log) StopRecording() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recording = false
	out := l.recordedBuf
	l.recordedBuf = nil
	return out
}

// ErrDigestMismatch is returned by Decode when the batch's digest does
// not match the BLAKE3 digest of its compressed bytes.
var ErrDigestMismatch = errors.New("audit: export batch digest mismatch")

// Import loads already-decoded entries (for example, the result of
// Decode on a previously exported batch) for replay, resetting any
// prior replay progress (spec §4.14's import).
func (l *Log) Import(entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.importBuf = entries
	l.replayCursor = 0
	l.progress = ReplayProgress{State: ReplayIdle, Total: len(entries)}
}

// StartReplay arms handler to process the imported batch one entry
// per Tick call (spec §4.14's start_replay; "replay is deterministic
// iteration over imported entries").
func (l *Log) StartReplay(handler Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.replayHandle = handler
	l.replayCursor = 0
	l.progress = ReplayProgress{State: ReplayRunning, Total: len(l.importBuf)}
}

// Pause suspends a running replay; Tick becomes a no-op until Resume.
func (l *Log) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.progress.State == ReplayRunning {
		l.progress.State = ReplayPaused
	}
}

// Resume continues a paused replay.
func (l *Log) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.progress.State == ReplayPaused {
		l.progress.State = ReplayRunning
	}
}

// Tick processes the next imported entry through the armed handler,
// advancing replay progress by exactly one entry. No-op if the replay
// is not RUNNING or has no remaining entries.
func (l *Log) Tick() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.progress.State != ReplayRunning {
		return
	}
	if l.replayCursor >= len(l.importBuf) {
		l.progress.State = ReplayCompleted
		return
	}

	entry := l.importBuf[l.replayCursor]
	l.replayCursor++
	l.progress.Current = l.replayCursor

	if l.replayHandle == nil {
		l.progress.Replayed++
		return
	}

	switch err := l.replayHandle(entry); {
	case err == nil:
		l.progress.Replayed++
	case errors.Is(err, ErrSkip):
		l.progress.Skipped++
	default:
		l.progress.State = ReplayError
		l.progress.LastError = err.Error()
	}

	if l.progress.State == ReplayRunning && l.replayCursor >= len(l.importBuf) {
		l.progress.State = ReplayCompleted
	}
}

// ReplayStatus returns a copy of the current replay progress
// (spec §4.14's reported progress record).
func (l *Log) ReplayStatus() ReplayProgress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.progress
}
