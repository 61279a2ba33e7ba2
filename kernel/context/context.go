// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/clove-kernel/clove/kernel/agent"
	"github.com/clove-kernel/clove/kernel/async"
	"github.com/clove-kernel/clove/kernel/audit"
	"github.com/clove-kernel/clove/kernel/event"
	"github.com/clove-kernel/clove/kernel/mailbox"
	"github.com/clove-kernel/clove/kernel/metrics"
	"github.com/clove-kernel/clove/kernel/permission"
	"github.com/clove-kernel/clove/kernel/router"
	"github.com/clove-kernel/clove/kernel/state"
	"github.com/clove-kernel/clove/kernel/supervisor"
	"github.com/clove-kernel/clove/kernel/world"
	"github.com/clove-kernel/clove/lib/clock"
)

// Config is the set of tunables kernel/context needs beyond what each
// subsystem already defaults to on its own (spec §6 "Kernel config
// struct" plus a few SPEC_FULL.md domain-stack knobs).
type Config struct {
	EnableSandboxing bool

	AsyncWorkers   int
	AsyncRateLimit float64 // requests/sec per agent; 0 disables limiting
	AsyncRateBurst int
	ChaosSeed      int64
	AuditConfig    audit.Config
}

// DefaultConfig returns the configuration cmd/kerneld starts with
// absent any .env/flag overrides.
func DefaultConfig() Config {
	return Config{
		EnableSandboxing: true,
		AsyncWorkers:     8,
		AsyncRateLimit:   50,
		AsyncRateBurst:   100,
		ChaosSeed:        1,
		AuditConfig:      audit.DefaultConfig(),
	}
}

// relayHandle is satisfied by *kernel/relay.Bridge. kernel/context
// imports kernel/relay; kernel/relay does not import kernel/context
// and reaches back only through the DispatchFunc and onEvent callbacks
// handed to relay.New, keeping the dependency one-directional (spec §9
// "Cyclic/back references ... one-way calls plus a queue, no mutual
// ownership").
type relayHandle interface {
	Status() json.RawMessage
	Remotes() json.RawMessage
	Connect(proxyBinary, url string, config json.RawMessage) error
	Disconnect() error
	Configure(config json.RawMessage) error
}

// Context is the kernel's single composition root (spec §9 "Global
// state ... everything else lives inside a single kernel context
// value passed to each subsystem"). Exported fields are themselves
// concurrency-safe subsystems; Context's own locks guard only the
// bookkeeping that doesn't belong to any one subsystem: agent identity
// allocation, recorded launch specs, and the optional relay bridge.
type Context struct {
	Clock  clock.Clock
	Logger *slog.Logger
	Config Config

	Router      *router.Router
	Mailbox     *mailbox.Registry
	State       *state.Store
	Events      *event.Bus
	Permissions *permission.Store
	Async       *async.Manager
	Worlds      *world.Engine
	Agents      *agent.Table
	Supervisor  *supervisor.Supervisor
	Audit       *audit.Log
	Metrics     *metrics.Registry

	nextAgentID atomic.Uint32

	specMu  sync.Mutex
	specs   map[uint32]agent.Spec
	pending map[uint32]struct{} // SPAWN-allocated ids awaiting their process's own connection

	relayMu sync.Mutex
	relay   relayHandle

	cgroupReader metrics.CgroupReader
}

// SetCgroupReader installs the sandbox cgroup accounting reader
// METRICS_CGROUP reports through (spec §1: cgroup setup is an
// external black box; this is its read-only metrics interface). Nil
// until a caller installs one; cmd/kerneld does not call it.
func (c *Context) SetCgroupReader(reader metrics.CgroupReader) {
	c.cgroupReader = reader
}

// New wires every subsystem together and returns a Context with no
// handlers registered yet; call RegisterHandlers to bind every opcode
// to its subsystem before starting the reactor.
func New(clk clock.Clock, logger *slog.Logger, cfg Config) *Context {
	bus := event.New(clk)
	ctx := &Context{
		Clock:       clk,
		Logger:      logger,
		Config:      cfg,
		Router:      router.New(),
		Mailbox:     mailbox.New(clk),
		State:       state.New(clk),
		Events:      bus,
		Permissions: permission.New(),
		Worlds:      world.New(clk, cfg.ChaosSeed),
		Agents:      agent.New(),
		Audit:       audit.New(clk, cfg.AuditConfig),
		Metrics:     metrics.New(),
		specs:       make(map[uint32]agent.Spec),
		pending:     make(map[uint32]struct{}),
	}
	ctx.Async = async.New(bus, cfg.AsyncWorkers, rate.Limit(cfg.AsyncRateLimit), cfg.AsyncRateBurst)
	ctx.Supervisor = supervisor.New(clk, bus, ctx.launchAgent)
	return ctx
}

// AttachRelay installs the relay tunnel bridge (spec §4.13).
// handleTunnelConnect constructs the bridge and attaches it, attaching
// nil again if the connect attempt fails; handleTunnelDisconnect
// attaches nil. Nil until a TUNNEL_CONNECT request attaches one.
func (c *Context) AttachRelay(r relayHandle) {
	c.relayMu.Lock()
	defer c.relayMu.Unlock()
	c.relay = r
}

func (c *Context) relayOrNil() relayHandle {
	c.relayMu.Lock()
	defer c.relayMu.Unlock()
	return c.relay
}

// OnConnect assigns an agent id to a newly accepted connection (spec
// §3 "Ids are never reused"; spec §4.2 "accept new connections and
// assign agent ids"). If requestedID names an id SPAWN pre-allocated
// for a not-yet-connected child process (passed to that process via
// an environment variable — see registerLifecycleHandlers), the
// connection claims that id instead of minting a fresh one; this is
// how a supervised agent's restart bookkeeping (keyed by the id
// SPAWN returned) stays attached to the process that actually
// connects. Any other requestedID, including 0, mints a fresh
// monotonic id.
func (c *Context) OnConnect(requestedID uint32) uint32 {
	id := uint32(0)
	if requestedID != 0 {
		c.specMu.Lock()
		if _, ok := c.pending[requestedID]; ok {
			delete(c.pending, requestedID)
			id = requestedID
		}
		c.specMu.Unlock()
	}
	if id == 0 {
		id = c.nextAgentID.Add(1)
	}
	c.Mailbox.EnsureAgent(id)
	c.Audit.Log(audit.CategoryLifecycle, id, "CONNECTED", nil, true)
	c.publishCounts()
	return id
}

// OnDisconnect handles a transient connection loss: the agent leaves
// any world it had joined, but its mailbox, permissions, and event
// subscriptions are left intact (spec §3: subscriptions are dropped
// only on permanent removal; spec §4.2: "the mailbox queue drains" is
// read here as "is simply left for a future Recv", not deleted).
func (c *Context) OnDisconnect(agentID uint32) {
	c.Worlds.LeaveWorld(agentID)
	c.Audit.Log(audit.CategoryLifecycle, agentID, "DISCONNECTED", nil, true)
}

// RemoveAgent permanently removes agentID from every subsystem (spec
// §3 "until explicitly removed"), called once an agent's process has
// been killed/reaped and will never reconnect under that id.
func (c *Context) RemoveAgent(agentID uint32) {
	c.Worlds.LeaveWorld(agentID)
	c.Mailbox.Remove(agentID)
	c.Permissions.Remove(agentID)
	c.Events.Remove(agentID)
	c.Async.Discard(agentID)
	c.Metrics.RemoveAgent(agentID)
	c.Supervisor.Remove(agentID)
	c.Agents.Remove(agentID)

	c.specMu.Lock()
	delete(c.specs, agentID)
	c.specMu.Unlock()

	c.Audit.Log(audit.CategoryLifecycle, agentID, "REMOVED", nil, true)
	c.publishCounts()
}

func (c *Context) publishCounts() {
	c.Metrics.SetAgentCount(len(c.Mailbox.Known()))
	c.Metrics.SetWorldCount(len(c.Worlds.ListWorlds()))
}

// Tick drives every periodic, reactor-timer-owned subsystem: the
// restart supervisor's reap/decide/schedule/launch cycle (spec
// §4.12) and one step of any in-progress audit replay (spec §4.14).
// Call this from the reactor's timer loop (kernel/reactor), never from
// more than one goroutine concurrently.
func (c *Context) Tick() {
	for _, result := range c.Agents.Reap() {
		c.Supervisor.ReportExit(result.AgentID, result.ExitCode)
		c.Events.Emit(event.AgentExited, mustJSON(map[string]any{
			"agent_id": result.AgentID, "exit_code": result.ExitCode,
		}), result.AgentID)
	}
	c.Supervisor.Tick()
	c.Audit.Tick()
}

// launchAgent is kernel/supervisor's LaunchFunc: it asks kernel/agent
// to (re)start the process tracked under agentID, using whatever Spec
// was recorded at SPAWN time.
func (c *Context) launchAgent(agentID uint32) error {
	c.specMu.Lock()
	spec, ok := c.specs[agentID]
	c.specMu.Unlock()
	if !ok {
		return fmt.Errorf("context: no recorded launch spec for agent %d", agentID)
	}
	return c.Agents.Spawn(spec)
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
