// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"testing"

	"github.com/clove-kernel/clove/lib/opcode"
)

func createAndJoinWorld(t *testing.T, ctx *Context, agentID uint32, req map[string]any) string {
	t.Helper()
	var createResp struct {
		Success bool   `json:"success"`
		WorldID string `json:"world_id"`
	}
	dispatchJSON(t, ctx, agentID, opcode.WORLD_CREATE, req, &createResp)
	if !createResp.Success || createResp.WorldID == "" {
		t.Fatalf("WORLD_CREATE failed: %+v", createResp)
	}

	var joinResp struct {
		Success bool `json:"success"`
	}
	dispatchJSON(t, ctx, agentID, opcode.WORLD_JOIN, map[string]any{"world_id": createResp.WorldID}, &joinResp)
	if !joinResp.Success {
		t.Fatalf("WORLD_JOIN failed: %+v", joinResp)
	}
	return createResp.WorldID
}

func TestReadReturnsVirtualAndWorldFields(t *testing.T) {
	ctx := newTestContext(t)
	agentID := ctx.OnConnect(0)
	defer ctx.OnDisconnect(agentID)

	worldID := createAndJoinWorld(t, ctx, agentID, map[string]any{
		"name": "hosts-world",
		"virtual_filesystem": map[string]any{
			"initial_files": map[string]any{
				"/etc/hosts": map[string]any{"content": "127.0.0.1 x", "mode": "rw"},
			},
		},
	})

	var readResp struct {
		Success bool   `json:"success"`
		Content string `json:"content"`
		Virtual bool   `json:"virtual"`
		World   string `json:"world"`
	}
	dispatchJSON(t, ctx, agentID, opcode.READ, map[string]any{"path": "/etc/hosts"}, &readResp)
	if !readResp.Success {
		t.Fatalf("READ failed: %+v", readResp)
	}
	if readResp.Content != "127.0.0.1 x" {
		t.Errorf("content = %q, want %q", readResp.Content, "127.0.0.1 x")
	}
	if !readResp.Virtual {
		t.Errorf("virtual = false, want true for a world-mediated read")
	}
	if readResp.World != worldID {
		t.Errorf("world = %q, want %q", readResp.World, worldID)
	}
}

func TestReadFailsWithExactChaosMessage(t *testing.T) {
	ctx := newTestContext(t)
	agentID := ctx.OnConnect(0)
	defer ctx.OnDisconnect(agentID)

	createAndJoinWorld(t, ctx, agentID, map[string]any{
		"name": "read-chaos-world",
		"virtual_filesystem": map[string]any{
			"initial_files": map[string]any{
				"/etc/hosts": map[string]any{"content": "127.0.0.1 x", "mode": "rw"},
			},
		},
		"chaos": map[string]any{"enabled": true, "failure_rate": 1.0},
	})

	var readResp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	dispatchJSON(t, ctx, agentID, opcode.READ, map[string]any{"path": "/etc/hosts"}, &readResp)
	if readResp.Success {
		t.Fatalf("expected READ to fail under guaranteed chaos")
	}
	if readResp.Error != "Simulated read failure (chaos)" {
		t.Errorf("error = %q, want %q", readResp.Error, "Simulated read failure (chaos)")
	}
}

func TestWriteFailsWithExactChaosMessage(t *testing.T) {
	ctx := newTestContext(t)
	agentID := ctx.OnConnect(0)
	defer ctx.OnDisconnect(agentID)

	createAndJoinWorld(t, ctx, agentID, map[string]any{
		"name":  "write-chaos-world",
		"chaos": map[string]any{"enabled": true, "failure_rate": 1.0},
	})

	var writeResp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	dispatchJSON(t, ctx, agentID, opcode.WRITE, map[string]any{"path": "workspace/note.txt", "content": "hi"}, &writeResp)
	if writeResp.Success {
		t.Fatalf("expected WRITE to fail under guaranteed chaos")
	}
	if writeResp.Error != "Simulated write failure (chaos)" {
		t.Errorf("error = %q, want %q", writeResp.Error, "Simulated write failure (chaos)")
	}
}
