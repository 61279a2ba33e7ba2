// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/json"

	"github.com/clove-kernel/clove/kernel/metrics"
	"github.com/clove-kernel/clove/lib/opcode"
)

// registerMetricsHandlers wires the supplemented metrics surface (spec
// §6's METRICS_* opcodes, elaborated by SPEC_FULL.md's "Metrics
// surface" addition) onto kernel/metrics.Registry.
func (c *Context) registerMetricsHandlers() {
	c.Router.Register(opcode.METRICS_SYSTEM, c.handleMetricsSystem)
	c.Router.Register(opcode.METRICS_AGENT, c.handleMetricsAgent)
	c.Router.Register(opcode.METRICS_ALL_AGENTS, c.handleMetricsAllAgents)
	c.Router.Register(opcode.METRICS_CGROUP, c.handleMetricsCgroup)
}

type metricsSystemResponse struct {
	opcode.Response
	metrics.SystemSnapshot
}

func (c *Context) handleMetricsSystem(callerID uint32, payload json.RawMessage) json.RawMessage {
	snap := metrics.SystemSnapshot{
		AgentCount:    len(c.Mailbox.Known()),
		WorldCount:    len(c.Worlds.ListWorlds()),
		TotalSyscalls: c.Metrics.TotalSyscalls(),
	}
	return encode(metricsSystemResponse{Response: opcode.OK(), SystemSnapshot: snap})
}

type metricsAgentRequest struct {
	AgentID uint32 `json:"agent_id"`
}

type metricsAgentResponse struct {
	opcode.Response
	metrics.AgentSnapshot
}

func (c *Context) handleMetricsAgent(callerID uint32, payload json.RawMessage) json.RawMessage {
	req := metricsAgentRequest{AgentID: callerID}
	if len(payload) > 0 {
		if body, ok := decode(payload, &req); !ok {
			return body
		}
	}
	return encode(metricsAgentResponse{Response: opcode.OK(), AgentSnapshot: c.agentSnapshot(req.AgentID)})
}

type metricsAllAgentsResponse struct {
	opcode.Response
	Agents []metrics.AgentSnapshot `json:"agents"`
}

func (c *Context) handleMetricsAllAgents(callerID uint32, payload json.RawMessage) json.RawMessage {
	var out []metrics.AgentSnapshot
	for _, id := range c.Metrics.AgentIDs() {
		out = append(out, c.agentSnapshot(id))
	}
	return encode(metricsAllAgentsResponse{Response: opcode.OK(), Agents: out})
}

func (c *Context) agentSnapshot(agentID uint32) metrics.AgentSnapshot {
	return metrics.AgentSnapshot{
		AgentID:     agentID,
		Syscalls:    c.Metrics.AgentSyscalls(agentID),
		MailboxSize: c.Mailbox.Depth(agentID),
		StateKeys:   len(c.State.Keys(agentID, "")),
	}
}

type metricsCgroupRequest struct {
	AgentID uint32 `json:"agent_id"`
}

type metricsCgroupResponse struct {
	opcode.Response
	metrics.CgroupStats
}

// handleMetricsCgroup reports cgroup accounting for an agent's
// sandbox. cgroup setup is a black box this kernel never performs
// itself (spec §1); absent a registered CgroupReader (no sandboxing
// configured) it reports the zero value rather than failing, matching
// how METRICS_SYSTEM degrades gracefully for an unsandboxed kernel.
func (c *Context) handleMetricsCgroup(callerID uint32, payload json.RawMessage) json.RawMessage {
	req := metricsCgroupRequest{AgentID: callerID}
	if len(payload) > 0 {
		if body, ok := decode(payload, &req); !ok {
			return body
		}
	}
	if c.cgroupReader == nil {
		return encode(metricsCgroupResponse{Response: opcode.OK()})
	}
	stats, err := c.cgroupReader(req.AgentID)
	if err != nil {
		return fail(opcode.ErrIOFailure, err.Error())
	}
	return encode(metricsCgroupResponse{Response: opcode.OK(), CgroupStats: stats})
}
