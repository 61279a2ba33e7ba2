// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/clove-kernel/clove/lib/clock"
)

// Scope selects a stored value's visibility and physical keying (spec
// §3 "Stored value").
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeAgent   Scope = "agent"
	ScopeSession Scope = "session"
)

// agentKeyPrefix returns the physical key prefix used for a given
// owner under ScopeAgent (spec §3 invariant).
func agentKeyPrefix(ownerAgentID uint32) string {
	return fmt.Sprintf("agent:%d:", ownerAgentID)
}

type storedValue struct {
	value        json.RawMessage
	ownerAgentID uint32
	scope        Scope
	expiresAt    time.Time // zero value means permanent
}

func (v storedValue) expired(now time.Time) bool {
	return !v.expiresAt.IsZero() && now.After(v.expiresAt)
}

// Store is the kernel's key-value state subsystem. Session scope is
// treated identically to global for both physical keying and access
// control (spec §9 Open Questions, resolved in SPEC_FULL.md).
type Store struct {
	clock clock.Clock

	mu   sync.Mutex
	data map[string]storedValue
}

// New creates an empty Store.
func New(clk clock.Clock) *Store {
	return &Store{clock: clk, data: make(map[string]storedValue)}
}

// Store writes value under key, physically keyed according to scope.
// ttl <= 0 stores a permanent entry.
func (s *Store) Store(agentID uint32, key string, value json.RawMessage, scope Scope, ttl time.Duration) {
	physicalKey := key
	if scope == ScopeAgent {
		physicalKey = agentKeyPrefix(agentID) + key
	}

	entry := storedValue{
		value:        value,
		ownerAgentID: agentID,
		scope:        scope,
	}
	if ttl > 0 {
		entry.expiresAt = s.clock.Now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[physicalKey] = entry
}

// Fetch tries the bare key, then the agent-scoped key, returning the
// first that exists, is unexpired, and passes access control (spec
// §4.5). Expired entries discovered during the attempt are erased.
func (s *Store) Fetch(agentID uint32, key string) (value json.RawMessage, scope Scope, exists bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	if entry, ok := s.data[key]; ok {
		if entry.expired(now) {
			delete(s.data, key)
		} else if s.readableLocked(agentID, entry) {
			return entry.value, entry.scope, true
		}
	}

	agentKey := agentKeyPrefix(agentID) + key
	if entry, ok := s.data[agentKey]; ok {
		if entry.expired(now) {
			delete(s.data, agentKey)
			return nil, "", false
		}
		// Agent-scoped entries are only ever written for their owner,
		// so no further access check is needed.
		return entry.value, entry.scope, true
	}

	return nil, "", false
}

// readableLocked reports whether agentID may read entry. Must be
// called with s.mu held.
func (s *Store) readableLocked(agentID uint32, entry storedValue) bool {
	switch entry.scope {
	case ScopeGlobal, ScopeSession:
		return true
	case ScopeAgent:
		return entry.ownerAgentID == agentID
	default:
		return false
	}
}

// Erase removes a matching key — bare first, then agent-scoped — only
// if agentID owns the entry or the entry is global scope.
func (s *Store) Erase(agentID uint32, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	if entry, ok := s.data[key]; ok {
		if entry.expired(now) {
			delete(s.data, key)
		} else if entry.scope == ScopeGlobal || entry.scope == ScopeSession || entry.ownerAgentID == agentID {
			delete(s.data, key)
			return true
		} else {
			return false
		}
	}

	agentKey := agentKeyPrefix(agentID) + key
	if entry, ok := s.data[agentKey]; ok {
		if entry.expired(now) {
			delete(s.data, agentKey)
			return false
		}
		delete(s.data, agentKey)
		return true
	}

	return false
}

// Keys enumerates the keys agentID may access, with the internal
// "agent:<id>:" prefix stripped from agent-scoped keys, filtered by
// prefix against the user-visible name. Expired entries encountered
// are erased.
func (s *Store) Keys(agentID uint32, prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	ownPrefix := agentKeyPrefix(agentID)

	var result []string
	for physicalKey, entry := range s.data {
		if entry.expired(now) {
			delete(s.data, physicalKey)
			continue
		}

		var visible string
		switch {
		case entry.scope == ScopeAgent && strings.HasPrefix(physicalKey, ownPrefix):
			visible = physicalKey[len(ownPrefix):]
		case entry.scope == ScopeAgent:
			continue // another agent's private key
		default:
			visible = physicalKey
		}

		if strings.HasPrefix(visible, prefix) {
			result = append(result, visible)
		}
	}
	return result
}
