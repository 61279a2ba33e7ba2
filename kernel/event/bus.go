// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/json"
	"sync"

	"github.com/clove-kernel/clove/lib/clock"
)

// KernelEventType is the closed enumeration of event kinds the bus
// carries (spec §4.6, supplemented with RESOURCE_WARNING per
// SPEC_FULL.md's DOMAIN STACK expansion).
type KernelEventType string

const (
	AgentSpawned    KernelEventType = "AGENT_SPAWNED"
	AgentExited     KernelEventType = "AGENT_EXITED"
	AgentPaused     KernelEventType = "AGENT_PAUSED"
	AgentResumed    KernelEventType = "AGENT_RESUMED"
	AgentRestarting KernelEventType = "AGENT_RESTARTING"
	AgentEscalated  KernelEventType = "AGENT_ESCALATED"
	MessageReceived KernelEventType = "MESSAGE_RECEIVED"
	StateChanged    KernelEventType = "STATE_CHANGED"
	SyscallBlocked  KernelEventType = "SYSCALL_BLOCKED"
	ResourceWarning KernelEventType = "RESOURCE_WARNING"
	Custom          KernelEventType = "CUSTOM"
)

var knownTypes = map[KernelEventType]struct{}{
	AgentSpawned: {}, AgentExited: {}, AgentPaused: {}, AgentResumed: {},
	AgentRestarting: {}, AgentEscalated: {}, MessageReceived: {},
	StateChanged: {}, SyscallBlocked: {}, ResourceWarning: {}, Custom: {},
}

// ParseType maps an arbitrary request-supplied name to a
// KernelEventType, degrading unknown names to CUSTOM (spec §4.6).
func ParseType(name string) KernelEventType {
	t := KernelEventType(name)
	if _, ok := knownTypes[t]; ok {
		return t
	}
	return Custom
}

// Event is one published notification (spec §3 "Event").
type Event struct {
	Type           KernelEventType `json:"type"`
	Data           json.RawMessage `json:"data"`
	SourceAgentID  uint32          `json:"source_agent_id"`
	TimestampMillis int64          `json:"timestamp_ms"`
}

type subscriber struct {
	types map[KernelEventType]struct{}
	queue []Event
}

// Bus is the kernel's event subsystem. All methods are safe for
// concurrent use; Bus owns exactly one lock (spec §5 "leaf locks").
type Bus struct {
	clock clock.Clock

	mu          sync.Mutex
	subscribers map[uint32]*subscriber
}

// New creates an empty Bus.
func New(clk clock.Clock) *Bus {
	return &Bus{clock: clk, subscribers: make(map[uint32]*subscriber)}
}

// Subscribe declares agentID's interest in the given types, adding to
// any previously declared interest.
func (b *Bus) Subscribe(agentID uint32, types []KernelEventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[agentID]
	if !ok {
		sub = &subscriber{types: make(map[KernelEventType]struct{})}
		b.subscribers[agentID] = sub
	}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}
}

// Unsubscribe removes interest in the given types. An empty types
// slice unsubscribes from everything (spec §4.6 "selective or total").
func (b *Bus) Unsubscribe(agentID uint32, types []KernelEventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[agentID]
	if !ok {
		return
	}
	if len(types) == 0 {
		delete(b.subscribers, agentID)
		return
	}
	for _, t := range types {
		delete(sub.types, t)
	}
}

// Remove drops all subscriptions and any queued events for agentID,
// called when the agent is permanently removed (spec §3 "Event
// subscriptions are dropped when an agent is permanently removed").
func (b *Bus) Remove(agentID uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, agentID)
}

// Emit appends one Event to every subscriber currently interested in
// eventType. Non-blocking: there is no fan-out goroutine (spec §4.6).
func (b *Bus) Emit(eventType KernelEventType, data json.RawMessage, sourceAgentID uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	evt := Event{
		Type:            eventType,
		Data:            data,
		SourceAgentID:   sourceAgentID,
		TimestampMillis: b.clock.Now().UnixMilli(),
	}
	for _, sub := range b.subscribers {
		if _, interested := sub.types[eventType]; interested {
			sub.queue = append(sub.queue, evt)
		}
	}
}

// Poll drains up to max entries FIFO from agentID's queue.
func (b *Bus) Poll(agentID uint32, max int) []Event {
	if max <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[agentID]
	if !ok || len(sub.queue) == 0 {
		return nil
	}

	n := max
	if n > len(sub.queue) {
		n = len(sub.queue)
	}
	drained := make([]Event, n)
	copy(drained, sub.queue[:n])
	sub.queue = sub.queue[n:]
	return drained
}
