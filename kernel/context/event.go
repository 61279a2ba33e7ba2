// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/json"

	"github.com/clove-kernel/clove/kernel/event"
	"github.com/clove-kernel/clove/lib/opcode"
)

func (c *Context) registerEventHandlers() {
	c.Router.Register(opcode.SUBSCRIBE, c.handleSubscribe)
	c.Router.Register(opcode.UNSUBSCRIBE, c.handleUnsubscribe)
	c.Router.Register(opcode.POLL_EVENTS, c.handlePollEvents)
	c.Router.Register(opcode.EMIT, c.handleEmit)
}

type subscribeRequest struct {
	Types []string `json:"types,omitempty"`
}

func parseTypes(names []string) []event.KernelEventType {
	types := make([]event.KernelEventType, 0, len(names))
	for _, name := range names {
		types = append(types, event.ParseType(name))
	}
	return types
}

func (c *Context) handleSubscribe(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req subscribeRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	c.Events.Subscribe(callerID, parseTypes(req.Types))
	return encode(opcode.OK())
}

func (c *Context) handleUnsubscribe(callerID uint32, payload json.RawMessage) json.RawMessage {
	req := subscribeRequest{}
	if len(payload) > 0 {
		if body, ok := decode(payload, &req); !ok {
			return body
		}
	}
	c.Events.Unsubscribe(callerID, parseTypes(req.Types))
	return encode(opcode.OK())
}

type pollEventsRequest struct {
	Max int `json:"max,omitempty"`
}

type pollEventsResponse struct {
	opcode.Response
	Events []event.Event `json:"events"`
}

func (c *Context) handlePollEvents(callerID uint32, payload json.RawMessage) json.RawMessage {
	req := pollEventsRequest{Max: 32}
	if len(payload) > 0 {
		if body, ok := decode(payload, &req); !ok {
			return body
		}
	}
	events := c.Events.Poll(callerID, req.Max)
	return encode(pollEventsResponse{Response: opcode.OK(), Events: events})
}

type emitRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (c *Context) handleEmit(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req emitRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	if req.Type == "" {
		return fail(opcode.ErrInvalidRequest, "type must be non-empty")
	}
	c.Events.Emit(event.ParseType(req.Type), req.Data, callerID)
	return encode(opcode.OK())
}
