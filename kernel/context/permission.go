// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/json"

	"github.com/clove-kernel/clove/kernel/permission"
	"github.com/clove-kernel/clove/lib/opcode"
)

func (c *Context) registerPermissionHandlers() {
	c.Router.Register(opcode.GET_PERMS, c.handleGetPerms)
	c.Router.Register(opcode.SET_PERMS, c.handleSetPerms)
}

type getPermsRequest struct {
	AgentID uint32 `json:"agent_id,omitempty"`
}

type getPermsResponse struct {
	opcode.Response
	permission.Record
}

func (c *Context) handleGetPerms(callerID uint32, payload json.RawMessage) json.RawMessage {
	req := getPermsRequest{}
	if len(payload) > 0 {
		if body, ok := decode(payload, &req); !ok {
			return body
		}
	}
	target := callerID
	if req.AgentID != 0 {
		target = req.AgentID
	}
	record := c.Permissions.GetOrCreate(target)
	return encode(getPermsResponse{Response: opcode.OK(), Record: record})
}

type setPermsRequest struct {
	AgentID      uint32                    `json:"agent_id,omitempty"`
	Level        string                    `json:"level,omitempty"`
	Capabilities *permission.Capabilities  `json:"capabilities,omitempty"`
}

func (c *Context) handleSetPerms(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req setPermsRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	target := callerID
	if req.AgentID != 0 {
		target = req.AgentID
	}

	if req.Capabilities != nil {
		if err := c.Permissions.SetPermissions(callerID, target, *req.Capabilities); err != nil {
			return fail(opcode.ErrPermissionDenied, err.Error())
		}
		return encode(opcode.OK())
	}
	if req.Level == "" {
		return fail(opcode.ErrInvalidRequest, "either level or capabilities must be set")
	}
	if err := c.Permissions.SetLevel(callerID, target, permission.Level(req.Level)); err != nil {
		return fail(opcode.ErrPermissionDenied, err.Error())
	}
	return encode(opcode.OK())
}
