// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/json"

	"github.com/clove-kernel/clove/kernel/audit"
	"github.com/clove-kernel/clove/lib/opcode"
)

// DispatchSyscall runs one syscall through the router on behalf of
// agentID, recording it in the metrics and audit subsystems exactly
// once regardless of which transport produced the request. Both
// kernel/reactor (local connections) and kernel/relay (remote agents
// forwarded through the tunnel bridge, spec §4.13) call this rather
// than Context.Router.Dispatch directly, so a remote agent's syscalls
// are indistinguishable from a local one's in the audit log and
// metrics counters.
func (c *Context) DispatchSyscall(agentID uint32, op opcode.Opcode, payload json.RawMessage) json.RawMessage {
	c.Metrics.RecordSyscall(agentID, op.String())
	_, response := c.Router.Dispatch(agentID, op, payload)

	success := true
	var probe struct {
		Success *bool `json:"success"`
	}
	if json.Unmarshal(response, &probe) == nil && probe.Success != nil {
		success = *probe.Success
	}
	c.Audit.Log(audit.CategorySyscalls, agentID, op.String(), nil, success)
	return response
}
