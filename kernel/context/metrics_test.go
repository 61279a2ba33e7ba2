// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/clove-kernel/clove/kernel/permission"
	"github.com/clove-kernel/clove/lib/clock"
	"github.com/clove-kernel/clove/lib/opcode"
)

func newTestContext(t *testing.T) *Context {
	ctx := New(clock.Real(), slog.New(slog.NewTextHandler(io.Discard, nil)), DefaultConfig())
	RegisterHandlers(ctx)
	t.Cleanup(func() {})
	return ctx
}

func dispatchJSON(t *testing.T, ctx *Context, agentID uint32, op opcode.Opcode, req any, dst any) {
	t.Helper()
	var payload json.RawMessage
	if req != nil {
		var err error
		payload, err = json.Marshal(req)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
	}
	resp := ctx.DispatchSyscall(agentID, op, payload)
	if err := json.Unmarshal(resp, dst); err != nil {
		t.Fatalf("unmarshal response %s: %v", resp, err)
	}
}

func TestMetricsSystemReflectsRegisteredAgents(t *testing.T) {
	ctx := newTestContext(t)

	agentID := ctx.OnConnect(0)
	defer ctx.OnDisconnect(agentID)

	var resp struct {
		Success    bool `json:"success"`
		AgentCount int  `json:"agent_count"`
	}
	dispatchJSON(t, ctx, agentID, opcode.METRICS_SYSTEM, nil, &resp)
	if !resp.Success {
		t.Fatalf("METRICS_SYSTEM failed")
	}
	if resp.AgentCount != 1 {
		t.Errorf("agent_count = %d, want 1", resp.AgentCount)
	}
}

func TestMetricsAgentCountsDispatchedSyscalls(t *testing.T) {
	ctx := newTestContext(t)

	agentID := ctx.OnConnect(0)
	defer ctx.OnDisconnect(agentID)

	// OnConnect itself doesn't dispatch a syscall; issue a couple so
	// the per-agent counter has something to report.
	var storeResp struct {
		Success bool `json:"success"`
	}
	dispatchJSON(t, ctx, agentID, opcode.STORE, map[string]any{"key": "k", "value": 1, "scope": "agent"}, &storeResp)
	if !storeResp.Success {
		t.Fatalf("STORE failed")
	}

	var metricsResp struct {
		Success  bool   `json:"success"`
		Syscalls uint64 `json:"syscalls"`
	}
	dispatchJSON(t, ctx, agentID, opcode.METRICS_AGENT, nil, &metricsResp)
	if !metricsResp.Success {
		t.Fatalf("METRICS_AGENT failed")
	}
	if metricsResp.Syscalls < 1 {
		t.Errorf("syscalls = %d, want at least 1 (the STORE call)", metricsResp.Syscalls)
	}
}

func TestMetricsCgroupDegradesGracefullyWithoutReader(t *testing.T) {
	ctx := newTestContext(t)

	agentID := ctx.OnConnect(0)
	defer ctx.OnDisconnect(agentID)

	var resp struct {
		Success      bool   `json:"success"`
		CPUUsageUsec uint64 `json:"cpu_usage_usec"`
	}
	dispatchJSON(t, ctx, agentID, opcode.METRICS_CGROUP, nil, &resp)
	if !resp.Success {
		t.Fatalf("METRICS_CGROUP failed without a registered reader")
	}
	if resp.CPUUsageUsec != 0 {
		t.Errorf("cpu_usage_usec = %d, want 0 (zero value, no reader registered)", resp.CPUUsageUsec)
	}
}

func TestTunnelStatusWithoutAttachedBridgeReportsDisconnected(t *testing.T) {
	ctx := newTestContext(t)

	agentID := ctx.OnConnect(0)
	defer ctx.OnDisconnect(agentID)

	var resp struct {
		Success   bool `json:"success"`
		Connected bool `json:"connected"`
	}
	dispatchJSON(t, ctx, agentID, opcode.TUNNEL_STATUS, nil, &resp)
	if !resp.Success {
		t.Fatalf("TUNNEL_STATUS failed")
	}
	if resp.Connected {
		t.Errorf("expected connected=false with no bridge attached")
	}
}

func TestTunnelConnectRequiresCanNetwork(t *testing.T) {
	ctx := newTestContext(t)

	agentID := ctx.OnConnect(0)
	defer ctx.OnDisconnect(agentID)
	if err := ctx.Permissions.SetLevel(agentID, agentID, permission.Readonly); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	dispatchJSON(t, ctx, agentID, opcode.TUNNEL_CONNECT, map[string]any{"url": "ws://example.invalid"}, &resp)
	if resp.Success {
		t.Fatalf("expected TUNNEL_CONNECT to fail for a readonly agent")
	}
}
