// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/json"

	"github.com/clove-kernel/clove/kernel/async"
	"github.com/clove-kernel/clove/lib/opcode"
)

func (c *Context) registerAsyncHandlers() {
	c.Router.Register(opcode.ASYNC_POLL, c.handleAsyncPoll)
}

type asyncPollRequest struct {
	Max int `json:"max,omitempty"`
}

type asyncPollResponse struct {
	opcode.Response
	Results []async.Result `json:"results"`
}

func (c *Context) handleAsyncPoll(callerID uint32, payload json.RawMessage) json.RawMessage {
	req := asyncPollRequest{Max: 16}
	if len(payload) > 0 {
		if body, ok := decode(payload, &req); !ok {
			return body
		}
	}
	results := c.Async.Poll(callerID, req.Max)
	return encode(asyncPollResponse{Response: opcode.OK(), Results: results})
}
