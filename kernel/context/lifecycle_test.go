// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/json"
	"testing"

	"github.com/clove-kernel/clove/kernel/permission"
	"github.com/clove-kernel/clove/lib/opcode"
)

func TestPauseResumeTransitionsAgentStateAndEmitsEvents(t *testing.T) {
	ctx := newTestContext(t)
	callerID := ctx.OnConnect(0)
	defer ctx.OnDisconnect(callerID)
	if err := ctx.Permissions.SetLevel(callerID, callerID, permission.Unrestricted); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}

	var subResp struct {
		Success bool `json:"success"`
	}
	dispatchJSON(t, ctx, callerID, opcode.SUBSCRIBE, map[string]any{"types": []string{"AGENT_PAUSED", "AGENT_RESUMED"}}, &subResp)
	if !subResp.Success {
		t.Fatalf("SUBSCRIBE failed")
	}

	var spawnResp struct {
		Success bool   `json:"success"`
		AgentID uint32 `json:"agent_id"`
	}
	dispatchJSON(t, ctx, callerID, opcode.SPAWN, map[string]any{
		"command":   []string{"sleep", "5"},
		"sandboxed": false,
	}, &spawnResp)
	if !spawnResp.Success || spawnResp.AgentID == 0 {
		t.Fatalf("SPAWN failed: %+v", spawnResp)
	}
	defer dispatchJSON(t, ctx, callerID, opcode.KILL, map[string]any{"agent_id": spawnResp.AgentID, "force": true}, &struct{ Success bool }{})

	var pauseResp struct {
		Success bool `json:"success"`
	}
	dispatchJSON(t, ctx, callerID, opcode.PAUSE, map[string]any{"agent_id": spawnResp.AgentID}, &pauseResp)
	if !pauseResp.Success {
		t.Fatalf("PAUSE failed: %+v", pauseResp)
	}

	var secondPause struct {
		Success bool `json:"success"`
	}
	dispatchJSON(t, ctx, callerID, opcode.PAUSE, map[string]any{"agent_id": spawnResp.AgentID}, &secondPause)
	if secondPause.Success {
		t.Errorf("expected a second PAUSE on an already-paused agent to fail")
	}

	var resumeResp struct {
		Success bool `json:"success"`
	}
	dispatchJSON(t, ctx, callerID, opcode.RESUME, map[string]any{"agent_id": spawnResp.AgentID}, &resumeResp)
	if !resumeResp.Success {
		t.Fatalf("RESUME failed: %+v", resumeResp)
	}

	var poll struct {
		Success bool              `json:"success"`
		Events  []json.RawMessage `json:"events"`
	}
	dispatchJSON(t, ctx, callerID, opcode.POLL_EVENTS, nil, &poll)
	if len(poll.Events) != 2 {
		t.Errorf("expected AGENT_PAUSED and AGENT_RESUMED events, got %d events: %s", len(poll.Events), poll.Events)
	}
}

func TestPauseUnknownAgentReportsNotFound(t *testing.T) {
	ctx := newTestContext(t)
	callerID := ctx.OnConnect(0)
	defer ctx.OnDisconnect(callerID)
	if err := ctx.Permissions.SetLevel(callerID, callerID, permission.Unrestricted); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}

	var resp struct {
		Success bool   `json:"success"`
		Kind    string `json:"error_kind"`
	}
	dispatchJSON(t, ctx, callerID, opcode.PAUSE, map[string]any{"agent_id": uint32(999)}, &resp)
	if resp.Success {
		t.Fatalf("expected PAUSE on an unknown agent to fail")
	}
	if resp.Kind != string(opcode.ErrNotFound) {
		t.Errorf("error_kind = %q, want %q", resp.Kind, opcode.ErrNotFound)
	}
}
