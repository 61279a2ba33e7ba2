// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/json"

	"github.com/clove-kernel/clove/kernel/mailbox"
	"github.com/clove-kernel/clove/lib/opcode"
)

func (c *Context) registerMailboxHandlers() {
	c.Router.Register(opcode.SEND, c.handleSend)
	c.Router.Register(opcode.RECV, c.handleRecv)
	c.Router.Register(opcode.BROADCAST, c.handleBroadcast)
	c.Router.Register(opcode.REGISTER, c.handleRegister)
}

type sendRequest struct {
	TargetID   uint32          `json:"target_id,omitempty"`
	TargetName string          `json:"target_name,omitempty"`
	Body       json.RawMessage `json:"body"`
}

func (c *Context) handleSend(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req sendRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	if err := c.Mailbox.Send(callerID, req.TargetID, req.TargetName, req.Body); err != nil {
		return fail(opcode.ErrNotFound, err.Error())
	}
	return encode(opcode.OK())
}

type recvRequest struct {
	Max int `json:"max,omitempty"`
}

type recvResponse struct {
	opcode.Response
	Messages []mailbox.Received `json:"messages"`
}

func (c *Context) handleRecv(callerID uint32, payload json.RawMessage) json.RawMessage {
	req := recvRequest{Max: 16}
	if len(payload) > 0 {
		if body, ok := decode(payload, &req); !ok {
			return body
		}
	}
	messages := c.Mailbox.Recv(callerID, req.Max)
	return encode(recvResponse{Response: opcode.OK(), Messages: messages})
}

type broadcastRequest struct {
	Body        json.RawMessage `json:"body"`
	IncludeSelf bool            `json:"include_self,omitempty"`
}

type broadcastResponse struct {
	opcode.Response
	Delivered int `json:"delivered"`
}

func (c *Context) handleBroadcast(callerID uint32, payload json.RawMessage) json.RawMessage {
	perms := c.Permissions.GetOrCreate(callerID)
	if !perms.Capabilities.CanSpawn {
		return fail(opcode.ErrPermissionDenied, "caller lacks can_spawn")
	}
	var req broadcastRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	delivered := c.Mailbox.Broadcast(callerID, req.Body, req.IncludeSelf)
	return encode(broadcastResponse{Response: opcode.OK(), Delivered: delivered})
}

type registerRequest struct {
	Name string `json:"name"`
}

func (c *Context) handleRegister(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req registerRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	if req.Name == "" {
		return fail(opcode.ErrInvalidRequest, "name must be non-empty")
	}
	if err := c.Mailbox.Register(callerID, req.Name); err != nil {
		return fail(opcode.ErrConflict, err.Error())
	}
	return encode(opcode.OK())
}
