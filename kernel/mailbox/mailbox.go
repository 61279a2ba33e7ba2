// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package mailbox

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/clove-kernel/clove/lib/clock"
)

// Entry is one inbound message sitting in a recipient's queue (spec §3
// "Mailbox entry").
type Entry struct {
	FromID    uint32          `json:"from_id"`
	FromName  string          `json:"from_name,omitempty"`
	Body      json.RawMessage `json:"body"`
	EnqueuedAt time.Time      `json:"-"`
}

// Received wraps an Entry with its age as of the Recv call, the shape
// returned to callers (spec §4.4 "returning each with its age").
type Received struct {
	Entry
	AgeMillis int64 `json:"age_ms"`
}

// ErrUnknownTarget is returned by Send when neither a target id nor a
// target name resolves to a known agent (spec §4.4).
type ErrUnknownTarget struct {
	Target string
}

func (e *ErrUnknownTarget) Error() string {
	return fmt.Sprintf("mailbox: unknown target %q", e.Target)
}

// ErrNameTaken is returned by Register when the requested name is
// already bound to a different agent.
type ErrNameTaken struct {
	Name string
}

func (e *ErrNameTaken) Error() string {
	return fmt.Sprintf("mailbox: name %q is already bound to another agent", e.Name)
}

// Registry is the kernel's mailbox and name-binding subsystem. All
// methods are safe for concurrent use; Registry holds exactly one lock
// (spec §5 "leaf locks — no store holds another's lock").
type Registry struct {
	clock clock.Clock

	mu        sync.Mutex
	known     map[uint32]struct{}
	names     map[string]uint32 // name -> agent id
	namesByID map[uint32]string // agent id -> name, for from_name resolution
	queues    map[uint32][]Entry
}

// New creates an empty Registry.
func New(clk clock.Clock) *Registry {
	return &Registry{
		clock:     clk,
		known:     make(map[uint32]struct{}),
		names:     make(map[string]uint32),
		namesByID: make(map[uint32]string),
		queues:    make(map[uint32][]Entry),
	}
}

// EnsureAgent records agentID as known, creating an empty inbox for it
// if one doesn't already exist. Called once per agent, when the
// reactor assigns its id (spec §4.2).
func (r *Registry) EnsureAgent(agentID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[agentID] = struct{}{}
	if _, exists := r.queues[agentID]; !exists {
		r.queues[agentID] = nil
	}
}

// Remove permanently removes agentID: its inbox, its name binding (if
// any), and its membership in the known-agents set used by Broadcast.
// Called when an agent is permanently removed (spec §3), not on every
// transient event.
func (r *Registry) Remove(agentID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.known, agentID)
	delete(r.queues, agentID)
	if name, bound := r.namesByID[agentID]; bound {
		delete(r.names, name)
		delete(r.namesByID, agentID)
	}
}

// Register binds name to agentID. Succeeds if name is unbound, or
// already bound to agentID itself (a no-op rebind). Fails with
// ErrNameTaken if name is bound to a different agent.
//
// A successful call releases any previous name agentID held — spec
// §4.4 ("binding persists until the agent is removed or re-registers").
func (r *Registry) Register(agentID uint32, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, bound := r.names[name]; bound && existingID != agentID {
		return &ErrNameTaken{Name: name}
	}

	if previous, hadName := r.namesByID[agentID]; hadName && previous != name {
		delete(r.names, previous)
	}
	r.names[name] = agentID
	r.namesByID[agentID] = name
	r.known[agentID] = struct{}{}
	return nil
}

// Resolve returns the agent id bound to name, if any.
func (r *Registry) Resolve(name string) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.names[name]
	return id, ok
}

// Name returns the name currently bound to agentID, if any.
func (r *Registry) Name(agentID uint32) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.namesByID[agentID]
	return name, ok
}

// Known returns every agent id currently tracked (spec §4.4's LIST
// surface: every agent that has ever connected and not yet been
// permanently removed).
func (r *Registry) Known() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint32, 0, len(r.known))
	for id := range r.known {
		ids = append(ids, id)
	}
	return ids
}

// Depth returns the number of undelivered entries sitting in
// agentID's inbox, for the METRICS_AGENT surface.
func (r *Registry) Depth(agentID uint32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues[agentID])
}

// Send enqueues one entry on the recipient's queue. Exactly one of
// targetID or targetName should be set by the caller; targetName takes
// priority when both are non-empty/non-zero is ambiguous, so callers
// pass targetID == 0 to mean "use targetName". Never blocks, never
// drops silently.
func (r *Registry) Send(fromID uint32, targetID uint32, targetName string, body json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	resolvedID := targetID
	label := fmt.Sprintf("%d", targetID)
	if targetName != "" {
		label = targetName
		id, ok := r.names[targetName]
		if !ok {
			return &ErrUnknownTarget{Target: targetName}
		}
		resolvedID = id
	}

	if _, exists := r.known[resolvedID]; !exists {
		return &ErrUnknownTarget{Target: label}
	}

	entry := Entry{
		FromID:     fromID,
		FromName:   r.namesByID[fromID],
		Body:       body,
		EnqueuedAt: r.clock.Now(),
	}
	r.queues[resolvedID] = append(r.queues[resolvedID], entry)
	return nil
}

// Recv drains up to max entries from agentID's inbox in FIFO order.
// A max <= 0 drains nothing.
func (r *Registry) Recv(agentID uint32, max int) []Received {
	if max <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	queue := r.queues[agentID]
	if len(queue) == 0 {
		return nil
	}

	n := max
	if n > len(queue) {
		n = len(queue)
	}

	now := r.clock.Now()
	received := make([]Received, n)
	for i := 0; i < n; i++ {
		received[i] = Received{
			Entry:     queue[i],
			AgeMillis: now.Sub(queue[i].EnqueuedAt).Milliseconds(),
		}
	}
	r.queues[agentID] = queue[n:]
	return received
}

// Broadcast enqueues body to every known agent, optionally skipping
// the sender. Returns the number of agents the message was delivered
// to.
func (r *Registry) Broadcast(fromID uint32, body json.RawMessage, includeSelf bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	fromName := r.namesByID[fromID]
	delivered := 0
	for id := range r.known {
		if id == fromID && !includeSelf {
			continue
		}
		r.queues[id] = append(r.queues[id], Entry{
			FromID:     fromID,
			FromName:   fromName,
			Body:       body,
			EnqueuedAt: now,
		})
		delivered++
	}
	return delivered
}
