// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CgroupReader reads resource-accounting data for an agent's sandbox
// cgroup. The kernel treats it as an opaque black box (spec §1) —
// implementations live outside this package and are invoked only
// through this interface.
type CgroupReader func(agentID uint32) (CgroupStats, error)

// CgroupStats is whatever a CgroupReader returns (spec's METRICS_CGROUP
// response shape). Fields are zero when the reader can't supply them.
type CgroupStats struct {
	CPUUsageUsec   uint64 `json:"cpu_usage_usec"`
	MemoryBytes    uint64 `json:"memory_bytes"`
	MemoryMaxBytes uint64 `json:"memory_max_bytes"`
}

// AgentSnapshot is one agent's current counters (METRICS_AGENT /
// METRICS_ALL_AGENTS response shape).
type AgentSnapshot struct {
	AgentID     uint32 `json:"agent_id"`
	Syscalls    uint64 `json:"syscalls"`
	MailboxSize int    `json:"mailbox_depth"`
	StateKeys   int    `json:"state_keys"`
}

// SystemSnapshot is the process-wide counters (METRICS_SYSTEM response
// shape).
type SystemSnapshot struct {
	AgentCount    int    `json:"agent_count"`
	WorldCount    int    `json:"world_count"`
	TotalSyscalls uint64 `json:"total_syscalls"`
}

// Registry is the kernel's metrics subsystem: a Prometheus registry of
// gauges/counters plus the in-process bookkeeping needed to answer the
// METRICS_* syscalls (spec §6, supplemented per SPEC_FULL.md). Safe
// for concurrent use; owns exactly one lock guarding the per-agent
// counter map, independent of the Prometheus registry's own locking.
type Registry struct {
	Registry *prometheus.Registry

	syscallsTotal   *prometheus.CounterVec
	agentCount      prometheus.Gauge
	worldCount      prometheus.Gauge
	resourceWarning *prometheus.CounterVec

	mu       sync.Mutex
	perAgent map[uint32]uint64
}

// New creates a Registry and registers its collectors with a fresh
// prometheus.Registry (kept separate from the global default registry
// so tests never collide across packages).
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		Registry: reg,
		syscallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clove",
			Subsystem: "kernel",
			Name:      "syscalls_total",
			Help:      "Total syscalls dispatched by the router, by opcode.",
		}, []string{"opcode"}),
		agentCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clove", Subsystem: "kernel", Name: "agents",
			Help: "Number of agents currently known to the kernel.",
		}),
		worldCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clove", Subsystem: "kernel", Name: "worlds",
			Help: "Number of worlds currently registered.",
		}),
		resourceWarning: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clove", Subsystem: "kernel", Name: "resource_warnings_total",
			Help: "RESOURCE_WARNING events emitted, by source agent.",
		}, []string{"agent_id"}),
		perAgent: make(map[uint32]uint64),
	}

	reg.MustRegister(r.syscallsTotal, r.agentCount, r.worldCount, r.resourceWarning)
	return r
}

// RecordSyscall increments the per-opcode and per-agent syscall
// counters. Called once per dispatched request by
// kernel/context.Context.DispatchSyscall.
func (r *Registry) RecordSyscall(agentID uint32, opcodeName string) {
	r.syscallsTotal.WithLabelValues(opcodeName).Inc()

	r.mu.Lock()
	r.perAgent[agentID]++
	r.mu.Unlock()
}

// SetAgentCount and SetWorldCount publish the current live counts,
// called by kernel/context after any membership change.
func (r *Registry) SetAgentCount(n int) { r.agentCount.Set(float64(n)) }
func (r *Registry) SetWorldCount(n int) { r.worldCount.Set(float64(n)) }

// RemoveAgent drops agentID's per-agent syscall counter, called when
// the agent is permanently removed.
func (r *Registry) RemoveAgent(agentID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.perAgent, agentID)
}

// AgentSyscalls returns agentID's accumulated syscall count.
func (r *Registry) AgentSyscalls(agentID uint32) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perAgent[agentID]
}

// TotalSyscalls returns the sum of every agent's syscall count.
func (r *Registry) TotalSyscalls() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total uint64
	for _, n := range r.perAgent {
		total += n
	}
	return total
}

// AgentIDs returns the set of agent ids with at least one recorded
// syscall, for building a METRICS_ALL_AGENTS response.
func (r *Registry) AgentIDs() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint32, 0, len(r.perAgent))
	for id := range r.perAgent {
		ids = append(ids, id)
	}
	return ids
}
