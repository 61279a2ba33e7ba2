// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/json"
	"testing"

	"github.com/clove-kernel/clove/kernel/event"
	"github.com/clove-kernel/clove/lib/opcode"
)

func TestFetchReportsExists(t *testing.T) {
	ctx := newTestContext(t)
	agentID := ctx.OnConnect(0)
	defer ctx.OnDisconnect(agentID)

	var missing struct {
		Success bool `json:"success"`
		Exists  bool `json:"exists"`
	}
	dispatchJSON(t, ctx, agentID, opcode.FETCH, map[string]any{"key": "x"}, &missing)
	if missing.Exists {
		t.Errorf("expected exists=false for a key never stored")
	}

	var storeResp struct {
		Success bool `json:"success"`
	}
	dispatchJSON(t, ctx, agentID, opcode.STORE, map[string]any{"key": "x", "value": 42, "scope": "agent"}, &storeResp)
	if !storeResp.Success {
		t.Fatalf("STORE failed")
	}

	var found struct {
		Success bool            `json:"success"`
		Exists  bool            `json:"exists"`
		Value   json.RawMessage `json:"value"`
		Scope   string          `json:"scope"`
	}
	dispatchJSON(t, ctx, agentID, opcode.FETCH, map[string]any{"key": "x"}, &found)
	if !found.Exists || string(found.Value) != "42" || found.Scope != "agent" {
		t.Errorf("FETCH = %+v, want exists=true value=42 scope=agent", found)
	}
}

func TestStoreEmitsStateChangedOnlyForGlobalScope(t *testing.T) {
	ctx := newTestContext(t)
	agentID := ctx.OnConnect(0)
	defer ctx.OnDisconnect(agentID)

	subscribeReq := map[string]any{"types": []string{string(event.StateChanged)}}
	var subResp struct {
		Success bool `json:"success"`
	}
	dispatchJSON(t, ctx, agentID, opcode.SUBSCRIBE, subscribeReq, &subResp)
	if !subResp.Success {
		t.Fatalf("SUBSCRIBE failed")
	}

	var storeResp struct {
		Success bool `json:"success"`
	}
	dispatchJSON(t, ctx, agentID, opcode.STORE, map[string]any{"key": "agent-key", "value": 1, "scope": "agent"}, &storeResp)
	if !storeResp.Success {
		t.Fatalf("STORE (agent scope) failed")
	}

	var pollAfterAgentWrite struct {
		Success bool              `json:"success"`
		Events  []json.RawMessage `json:"events"`
	}
	dispatchJSON(t, ctx, agentID, opcode.POLL_EVENTS, nil, &pollAfterAgentWrite)
	if len(pollAfterAgentWrite.Events) != 0 {
		t.Errorf("expected no STATE_CHANGED event after an agent-scoped write, got %d", len(pollAfterAgentWrite.Events))
	}

	dispatchJSON(t, ctx, agentID, opcode.STORE, map[string]any{"key": "global-key", "value": 2, "scope": "global"}, &storeResp)
	if !storeResp.Success {
		t.Fatalf("STORE (global scope) failed")
	}

	var pollAfterGlobalWrite struct {
		Success bool              `json:"success"`
		Events  []json.RawMessage `json:"events"`
	}
	dispatchJSON(t, ctx, agentID, opcode.POLL_EVENTS, nil, &pollAfterGlobalWrite)
	if len(pollAfterGlobalWrite.Events) != 1 {
		t.Errorf("expected exactly one STATE_CHANGED event after a global write, got %d", len(pollAfterGlobalWrite.Events))
	}
}
