// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/clove-kernel/clove/lib/clock"
)

// Config is the configuration accepted by CreateWorld (spec §4.11).
type Config struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	VFS         VFSConfig     `json:"virtual_filesystem"`
	Network     NetworkConfig `json:"network"`
	Chaos       ChaosConfig   `json:"chaos"`
}

// Metrics is a World's usage counters (spec §3 "World metrics").
type Metrics struct {
	AgentCount   int       `json:"agent_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// World is one simulated environment: a VFS, a network mock, a chaos
// engine, and the set of agents currently joined to it (spec §4.11).
type World struct {
	ID          string
	Name        string
	Description string

	VFS     *VFS
	Network *NetworkMock
	Chaos   *ChaosEngine

	clock clock.Clock

	mu        sync.Mutex
	agents    map[uint32]struct{}
	createdAt time.Time
	lastUsed  time.Time
}

func newWorld(clk clock.Clock, id string, cfg Config, chaosSeed int64) *World {
	w := &World{
		ID:          id,
		Name:        cfg.Name,
		Description: cfg.Description,
		VFS:         NewVFS(clk),
		Network:     NewNetworkMock(),
		Chaos:       NewChaosEngine(chaosSeed),
		clock:       clk,
		agents:      make(map[uint32]struct{}),
	}
	w.VFS.Configure(cfg.VFS)
	w.Network.Configure(cfg.Network)
	w.Chaos.Configure(cfg.Chaos)
	now := clk.Now()
	w.createdAt = now
	w.lastUsed = now
	return w
}

// AddAgent joins agentID to the world.
func (w *World) AddAgent(agentID uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.agents[agentID] = struct{}{}
	w.lastUsed = w.clock.Now()
}

// RemoveAgent removes agentID from the world.
func (w *World) RemoveAgent(agentID uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.agents, agentID)
}

// HasAgent reports whether agentID is currently a member.
func (w *World) HasAgent(agentID uint32) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.agents[agentID]
	return ok
}

// AgentCount returns the number of joined agents.
func (w *World) AgentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.agents)
}

// Agents returns a snapshot of joined agent ids.
func (w *World) Agents() []uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]uint32, 0, len(w.agents))
	for id := range w.agents {
		out = append(out, id)
	}
	return out
}

// Metrics returns the world's current usage counters.
func (w *World) Metrics() Metrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Metrics{AgentCount: len(w.agents), CreatedAt: w.createdAt, LastActivity: w.lastUsed}
}

// Snapshot captures the entire world state for serialization (spec
// §4.11 "snapshot (serialize the whole world)").
type Snapshot struct {
	ID          string      `cbor:"id"`
	Name        string      `cbor:"name"`
	Description string      `cbor:"description"`
	VFS         VFSSnapshot `cbor:"vfs"`
}

func (w *World) snapshot() Snapshot {
	return Snapshot{ID: w.ID, Name: w.Name, Description: w.Description, VFS: w.VFS.Snapshot()}
}

// Engine manages the set of worlds and the at-most-one agent→world
// membership map (spec §4.11). Safe for concurrent use; owns exactly
// one lock (spec §5).
type Engine struct {
	clock clock.Clock

	mu           sync.Mutex
	worlds       map[string]*World
	agentToWorld map[uint32]string
	nextWorldNum map[string]int
	chaosSeed    int64
}

// New creates an empty Engine. chaosSeed seeds every world's
// ChaosEngine deterministically; every world gets the same seed.
func New(clk clock.Clock, chaosSeed int64) *Engine {
	return &Engine{
		clock:        clk,
		worlds:       make(map[string]*World),
		agentToWorld: make(map[uint32]string),
		nextWorldNum: make(map[string]int),
		chaosSeed:    chaosSeed,
	}
}

// sanitizeID lowercases, keeps only alphanumeric/-/_, maps spaces to
// "-", and truncates to 32 characters (spec §4.11 "sanitizing the
// supplied name").
func sanitizeID(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == ' ':
			b.WriteByte('-')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	base := b.String()
	if base == "" {
		base = "world"
	}
	if len(base) > 32 {
		base = base[:32]
	}
	return base
}

// generateID appends a monotonic 4-digit suffix to the sanitized base
// (spec §4.11).
func (e *Engine) generateID(name string) string {
	base := sanitizeID(name)
	e.nextWorldNum[base]++
	return fmt.Sprintf("%s-%04d", base, e.nextWorldNum[base])
}

// ErrNotFound is returned for operations on an unknown world id.
type ErrNotFound struct{ WorldID string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("world: unknown world %q", e.WorldID) }

// ErrNotEmpty is returned by DestroyWorld when force=false and the
// world still has members.
type ErrNotEmpty struct{ WorldID string }

func (e *ErrNotEmpty) Error() string {
	return fmt.Sprintf("world: %q has active agents, destroy refused without force", e.WorldID)
}

// ErrAlreadyInWorld is returned by JoinWorld when the agent is already
// a member of a (possibly different) world.
type ErrAlreadyInWorld struct {
	AgentID uint32
	WorldID string
}

func (e *ErrAlreadyInWorld) Error() string {
	return fmt.Sprintf("world: agent %d already in world %q", e.AgentID, e.WorldID)
}

// CreateWorld creates and registers a new world, returning its
// generated id.
func (e *Engine) CreateWorld(name string, cfg Config) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.generateID(name)
	e.worlds[id] = newWorld(e.clock, id, cfg, e.chaosSeed)
	return id
}

// DestroyWorld removes a world. Refuses a non-empty world unless
// force is true, in which case every member is evicted (spec §4.11,
// spec §8 property 10).
func (e *Engine) DestroyWorld(worldID string, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.worlds[worldID]
	if !ok {
		return &ErrNotFound{WorldID: worldID}
	}
	if !force && w.AgentCount() > 0 {
		return &ErrNotEmpty{WorldID: worldID}
	}
	for _, agentID := range w.Agents() {
		delete(e.agentToWorld, agentID)
	}
	delete(e.worlds, worldID)
	return nil
}

// GetWorld returns the world registered under worldID.
func (e *Engine) GetWorld(worldID string) (*World, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.worlds[worldID]
	return w, ok
}

// ListWorlds returns every registered world.
func (e *Engine) ListWorlds() []*World {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*World, 0, len(e.worlds))
	for _, w := range e.worlds {
		out = append(out, w)
	}
	return out
}

// JoinWorld adds agentID to worldID, enforcing at most one world per
// agent (spec §4.11).
func (e *Engine) JoinWorld(agentID uint32, worldID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.agentToWorld[agentID]; ok {
		return &ErrAlreadyInWorld{AgentID: agentID, WorldID: existing}
	}
	w, ok := e.worlds[worldID]
	if !ok {
		return &ErrNotFound{WorldID: worldID}
	}
	w.AddAgent(agentID)
	e.agentToWorld[agentID] = worldID
	return nil
}

// LeaveWorld removes agentID from whatever world it is in, a no-op if
// it is in none.
func (e *Engine) LeaveWorld(agentID uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	worldID, ok := e.agentToWorld[agentID]
	if !ok {
		return
	}
	if w, ok := e.worlds[worldID]; ok {
		w.RemoveAgent(agentID)
	}
	delete(e.agentToWorld, agentID)
}

// AgentWorld returns the world id agentID is currently joined to.
func (e *Engine) AgentWorld(agentID uint32) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.agentToWorld[agentID]
	return id, ok
}

// InjectEvent activates evt with params in worldID's chaos engine.
func (e *Engine) InjectEvent(worldID string, evt ActiveEvent, params json.RawMessage) error {
	w, ok := e.GetWorld(worldID)
	if !ok {
		return &ErrNotFound{WorldID: worldID}
	}
	w.Chaos.InjectEvent(evt, params)
	return nil
}

// SnapshotWorld serializes worldID's entire state.
func (e *Engine) SnapshotWorld(worldID string) (Snapshot, error) {
	w, ok := e.GetWorld(worldID)
	if !ok {
		return Snapshot{}, &ErrNotFound{WorldID: worldID}
	}
	return w.snapshot(), nil
}

// RestoreWorld rebuilds a world from snap under newWorldID (or a
// freshly generated id if newWorldID is empty), registering it (spec
// §4.11 "restore").
func (e *Engine) RestoreWorld(snap Snapshot, newWorldID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := newWorldID
	if id == "" {
		id = e.generateID(snap.Name)
	}

	w := newWorld(e.clock, id, Config{Name: snap.Name, Description: snap.Description}, e.chaosSeed)
	w.VFS.Restore(snap.VFS)
	e.worlds[id] = w
	return id
}
