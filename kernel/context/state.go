// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/json"
	"time"

	"github.com/clove-kernel/clove/kernel/event"
	"github.com/clove-kernel/clove/kernel/state"
	"github.com/clove-kernel/clove/lib/opcode"
)

func (c *Context) registerStateHandlers() {
	c.Router.Register(opcode.STORE, c.handleStore)
	c.Router.Register(opcode.FETCH, c.handleFetch)
	c.Router.Register(opcode.DELETE, c.handleDelete)
	c.Router.Register(opcode.KEYS, c.handleKeys)
}

type storeRequest struct {
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	Scope    string          `json:"scope,omitempty"`
	TTLSec   float64         `json:"ttl_sec,omitempty"`
}

func (c *Context) handleStore(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req storeRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	if req.Key == "" {
		return fail(opcode.ErrInvalidRequest, "key must be non-empty")
	}

	scope := state.ScopeGlobal
	switch req.Scope {
	case "", string(state.ScopeGlobal):
		scope = state.ScopeGlobal
	case string(state.ScopeAgent):
		scope = state.ScopeAgent
	case string(state.ScopeSession):
		// Session scope collapses to global (SPEC_FULL.md Open Questions
		// decision: no per-session identity exists at the kernel level).
		scope = state.ScopeGlobal
	default:
		return fail(opcode.ErrInvalidRequest, "unknown scope "+req.Scope)
	}

	ttl := time.Duration(req.TTLSec * float64(time.Second))
	c.State.Store(callerID, req.Key, req.Value, scope, ttl)
	// Only a global write is visible kernel-wide, so only a global
	// write is worth a subscriber's attention (spec §4.5: writes to
	// agent-private keys do not emit STATE_CHANGED).
	if scope == state.ScopeGlobal {
		c.Events.Emit(event.StateChanged, mustJSON(map[string]any{"key": req.Key, "scope": string(scope)}), callerID)
	}
	return encode(opcode.OK())
}

type fetchRequest struct {
	Key string `json:"key"`
}

type fetchResponse struct {
	opcode.Response
	Value  json.RawMessage `json:"value,omitempty"`
	Scope  string          `json:"scope,omitempty"`
	Exists bool            `json:"exists"`
}

func (c *Context) handleFetch(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req fetchRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	value, scope, found := c.State.Fetch(callerID, req.Key)
	if !found {
		return encode(fetchResponse{Response: opcode.OK(), Exists: false})
	}
	return encode(fetchResponse{Response: opcode.OK(), Value: value, Scope: string(scope), Exists: true})
}

type deleteRequest struct {
	Key string `json:"key"`
}

type deleteResponse struct {
	opcode.Response
	Deleted bool `json:"deleted"`
}

func (c *Context) handleDelete(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req deleteRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	deleted := c.State.Erase(callerID, req.Key)
	return encode(deleteResponse{Response: opcode.OK(), Deleted: deleted})
}

type keysRequest struct {
	Prefix string `json:"prefix,omitempty"`
}

type keysResponse struct {
	opcode.Response
	Keys []string `json:"keys"`
}

func (c *Context) handleKeys(callerID uint32, payload json.RawMessage) json.RawMessage {
	req := keysRequest{}
	if len(payload) > 0 {
		if body, ok := decode(payload, &req); !ok {
			return body
		}
	}
	keys := c.State.Keys(callerID, req.Prefix)
	return encode(keysResponse{Response: opcode.OK(), Keys: keys})
}
