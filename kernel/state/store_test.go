// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/clove-kernel/clove/lib/clock"
)

// TestScopeIsolation implements scenario E2 from spec.md §8.
func TestScopeIsolation(t *testing.T) {
	store := New(clock.Fake(time.Unix(0, 0)))

	store.Store(7, "x", json.RawMessage(`42`), ScopeAgent, 0)

	value, scope, exists := store.Fetch(7, "x")
	if !exists {
		t.Fatal("fetch(7, x) = not exists, want exists")
	}
	if scope != ScopeAgent {
		t.Errorf("scope = %q, want %q", scope, ScopeAgent)
	}
	if string(value) != "42" {
		t.Errorf("value = %s, want 42", value)
	}

	if _, _, exists := store.Fetch(8, "x"); exists {
		t.Error("fetch(8, x) = exists, want not exists (agent-scoped key is private)")
	}
}

// TestTTLExpiry implements scenario E3 from spec.md §8.
func TestTTLExpiry(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	store := New(fake)

	store.Store(1, "t", json.RawMessage(`"v"`), ScopeGlobal, time.Second)

	if _, _, exists := store.Fetch(1, "t"); !exists {
		t.Fatal("immediate fetch = not exists, want exists")
	}

	fake.Advance(2 * time.Second)

	if _, _, exists := store.Fetch(1, "t"); exists {
		t.Error("fetch after TTL elapsed = exists, want not exists")
	}

	keys := store.Keys(1, "t")
	if len(keys) != 0 {
		t.Errorf("keys(prefix=t) = %v, want empty after expiry", keys)
	}
}

func TestGlobalWriteVisibleToAllAgents(t *testing.T) {
	store := New(clock.Real())
	store.Store(1, "shared", json.RawMessage(`"hello"`), ScopeGlobal, 0)

	for _, reader := range []uint32{1, 2, 99} {
		if _, _, exists := store.Fetch(reader, "shared"); !exists {
			t.Errorf("agent %d could not read global key", reader)
		}
	}
}

func TestEraseRequiresOwnershipOrGlobalScope(t *testing.T) {
	store := New(clock.Real())
	store.Store(7, "private", json.RawMessage(`1`), ScopeAgent, 0)

	if store.Erase(8, "private") {
		t.Error("agent 8 erased agent 7's private key")
	}
	if !store.Erase(7, "private") {
		t.Error("owner failed to erase its own key")
	}

	store.Store(1, "shared", json.RawMessage(`1`), ScopeGlobal, 0)
	if !store.Erase(2, "shared") {
		t.Error("non-owner could not erase a global-scope key")
	}
}

func TestKeysStripsAgentPrefixAndFiltersByPrefix(t *testing.T) {
	store := New(clock.Real())
	store.Store(7, "alpha", json.RawMessage(`1`), ScopeAgent, 0)
	store.Store(7, "beta", json.RawMessage(`1`), ScopeAgent, 0)
	store.Store(1, "alpha-global", json.RawMessage(`1`), ScopeGlobal, 0)
	store.Store(9, "alpha-other", json.RawMessage(`1`), ScopeAgent, 0)

	keys := store.Keys(7, "alpha")
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "alpha" || keys[1] != "alpha-global" {
		t.Errorf("Keys(7, %q) = %v, want [alpha alpha-global]", "alpha", keys)
	}
}

func TestNonPositiveTTLIsPermanent(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	store := New(fake)
	store.Store(1, "permanent", json.RawMessage(`1`), ScopeGlobal, 0)

	fake.Advance(365 * 24 * time.Hour)

	if _, _, exists := store.Fetch(1, "permanent"); !exists {
		t.Error("non-positive TTL entry expired, want permanent")
	}
}
