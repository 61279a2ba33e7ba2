// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package mailbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/clove-kernel/clove/lib/clock"
)

// TestMailboxFIFO implements scenario E1 from spec.md §8.
func TestMailboxFIFO(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	registry := New(clk)

	const alice uint32 = 1
	const bob uint32 = 2
	registry.EnsureAgent(alice)
	registry.Register(alice, "alice")
	registry.EnsureAgent(bob)

	body := json.RawMessage(`{}`)
	if err := registry.Send(alice, 0, "bob", body); err == nil {
		t.Fatal("expected NOT_FOUND sending to unregistered name \"bob\"")
	}

	if err := registry.Register(bob, "bob"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for i := 0; i < 2; i++ {
		msg, _ := json.Marshal(map[string]int{"n": 1})
		if err := registry.Send(alice, 0, "bob", msg); err != nil {
			t.Fatalf("Send #%d: %v", i, err)
		}
	}

	received := registry.Recv(bob, 10)
	if len(received) != 2 {
		t.Fatalf("Recv returned %d entries, want 2", len(received))
	}
	for _, entry := range received {
		if entry.FromName != "alice" {
			t.Errorf("entry.FromName = %q, want %q", entry.FromName, "alice")
		}
		var body struct{ N int }
		if err := json.Unmarshal(entry.Body, &body); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		if body.N != 1 {
			t.Errorf("entry.Body.n = %d, want 1", body.N)
		}
	}
}

func TestRegisterNameTaken(t *testing.T) {
	registry := New(clock.Real())
	registry.EnsureAgent(1)
	registry.EnsureAgent(2)

	if err := registry.Register(1, "shared"); err != nil {
		t.Fatalf("Register(1): %v", err)
	}
	if err := registry.Register(2, "shared"); err == nil {
		t.Fatal("expected ErrNameTaken")
	}
	// Re-registering the same agent with the same name is a no-op success.
	if err := registry.Register(1, "shared"); err != nil {
		t.Fatalf("re-register same name: %v", err)
	}
}

func TestRegisterRebindReleasesPreviousName(t *testing.T) {
	registry := New(clock.Real())
	registry.EnsureAgent(1)
	registry.EnsureAgent(2)

	if err := registry.Register(1, "first"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register(1, "second"); err != nil {
		t.Fatalf("Register (rebind): %v", err)
	}
	// "first" should now be free for another agent.
	if err := registry.Register(2, "first"); err != nil {
		t.Fatalf("expected \"first\" to be released, got: %v", err)
	}
}

func TestBroadcastDeliversToAllExceptSelf(t *testing.T) {
	registry := New(clock.Real())
	for id := uint32(1); id <= 3; id++ {
		registry.EnsureAgent(id)
	}

	delivered := registry.Broadcast(1, json.RawMessage(`{}`), false)
	if delivered != 2 {
		t.Fatalf("Broadcast delivered %d, want 2", delivered)
	}
	if got := registry.Recv(1, 10); len(got) != 0 {
		t.Errorf("sender received its own broadcast with includeSelf=false: %d entries", len(got))
	}
	if got := registry.Recv(2, 10); len(got) != 1 {
		t.Errorf("agent 2 received %d entries, want 1", len(got))
	}
}

func TestSendUnknownTarget(t *testing.T) {
	registry := New(clock.Real())
	registry.EnsureAgent(1)

	err := registry.Send(1, 99, "", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected ErrUnknownTarget")
	}
}

func TestRemovePurgesNameAndQueue(t *testing.T) {
	registry := New(clock.Real())
	registry.EnsureAgent(1)
	registry.Register(1, "gone")
	registry.EnsureAgent(2)
	registry.Send(2, 1, "", json.RawMessage(`{}`))

	registry.Remove(1)

	if _, ok := registry.Resolve("gone"); ok {
		t.Error("name binding survived Remove")
	}
	if err := registry.Send(2, 0, "gone", json.RawMessage(`{}`)); err == nil {
		t.Error("expected removed agent to be unknown")
	}
}
