// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"fmt"
	"sync"

	"github.com/clove-kernel/clove/lib/pattern"
)

// Level is the closed enumeration of permission presets (spec §3
// "Permission record").
type Level string

const (
	Unrestricted Level = "UNRESTRICTED"
	Standard     Level = "STANDARD"
	Sandboxed    Level = "SANDBOXED"
	Readonly     Level = "READONLY"
	Minimal      Level = "MINIMAL"
)

// Capabilities is an agent's capability set: a spawn/network flag
// pair plus path allow-lists evaluated by the file syscall handlers
// before any I/O (spec §4.7).
type Capabilities struct {
	CanSpawn      bool     `json:"can_spawn"`
	CanNetwork    bool     `json:"can_network"`
	ReadablePaths []string `json:"readable_paths"`
	WritablePaths []string `json:"writable_paths"`
}

// FromLevel builds the capability set a preset level implies. Each
// level is a fixed, non-overridable starting point — callers that
// need finer-grained control call SetPermissions with an explicit
// Capabilities value instead.
func FromLevel(level Level) Capabilities {
	switch level {
	case Unrestricted:
		return Capabilities{
			CanSpawn: true, CanNetwork: true,
			ReadablePaths: []string{"**"}, WritablePaths: []string{"**"},
		}
	case Standard:
		return Capabilities{
			CanSpawn: false, CanNetwork: true,
			ReadablePaths: []string{"**"}, WritablePaths: []string{"workspace/**", "tmp/**"},
		}
	case Sandboxed:
		return Capabilities{
			CanSpawn: false, CanNetwork: false,
			ReadablePaths: []string{"workspace/**"}, WritablePaths: []string{"workspace/**"},
		}
	case Readonly:
		return Capabilities{
			CanSpawn: false, CanNetwork: false,
			ReadablePaths: []string{"**"}, WritablePaths: nil,
		}
	case Minimal:
		return Capabilities{CanSpawn: false, CanNetwork: false}
	default:
		return FromLevel(Standard)
	}
}

// CanRead reports whether path matches any of the capability set's
// readable-path patterns.
func (c Capabilities) CanRead(path string) bool {
	return pattern.MatchAny(c.ReadablePaths, path)
}

// CanWrite reports whether path matches any of the capability set's
// writable-path patterns.
func (c Capabilities) CanWrite(path string) bool {
	return pattern.MatchAny(c.WritablePaths, path)
}

// Record is one agent's stored permission state (spec §3).
type Record struct {
	Level        Level        `json:"level"`
	Capabilities Capabilities `json:"capabilities"`
}

// ErrPermissionDenied is returned by SetPermissions/SetLevel when the
// caller lacks can_spawn and targets a different agent (spec §4.7
// "Cross-agent mutation is allowed only when the caller holds
// can_spawn").
type ErrPermissionDenied struct {
	CallerID uint32
	TargetID uint32
}

func (e *ErrPermissionDenied) Error() string {
	return fmt.Sprintf("permission: agent %d cannot modify permissions of agent %d", e.CallerID, e.TargetID)
}

// Store is the kernel's permissions subsystem. All methods are safe
// for concurrent use; Store owns exactly one lock (spec §5 "leaf
// locks").
type Store struct {
	mu      sync.Mutex
	records map[uint32]Record
}

// New creates an empty Store.
func New() *Store {
	return &Store{records: make(map[uint32]Record)}
}

// GetOrCreate returns agentID's record, initializing it to the
// STANDARD preset on first access (spec §4.7).
func (s *Store) GetOrCreate(agentID uint32) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(agentID)
}

func (s *Store) getOrCreateLocked(agentID uint32) Record {
	record, ok := s.records[agentID]
	if !ok {
		record = Record{Level: Standard, Capabilities: FromLevel(Standard)}
		s.records[agentID] = record
	}
	return record
}

// SetPermissions overwrites targetID's capability set with caps,
// provided callerID is targetID itself or holds can_spawn.
func (s *Store) SetPermissions(callerID, targetID uint32, caps Capabilities) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if callerID != targetID {
		caller := s.getOrCreateLocked(callerID)
		if !caller.Capabilities.CanSpawn {
			return &ErrPermissionDenied{CallerID: callerID, TargetID: targetID}
		}
	}

	existing := s.getOrCreateLocked(targetID)
	existing.Capabilities = caps
	s.records[targetID] = existing
	return nil
}

// SetLevel overwrites targetID's record with the named preset,
// subject to the same cross-agent restriction as SetPermissions.
func (s *Store) SetLevel(callerID, targetID uint32, level Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if callerID != targetID {
		caller := s.getOrCreateLocked(callerID)
		if !caller.Capabilities.CanSpawn {
			return &ErrPermissionDenied{CallerID: callerID, TargetID: targetID}
		}
	}

	s.records[targetID] = Record{Level: level, Capabilities: FromLevel(level)}
	return nil
}

// Remove deletes targetID's record, at the kernel's (not the agent's)
// discretion (spec §4.2 "the permissions record may be kept or purged
// by policy").
func (s *Store) Remove(targetID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, targetID)
}
