// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/json"

	"github.com/clove-kernel/clove/lib/opcode"
)

// RegisterHandlers binds every opcode in the closed enumeration to its
// owning subsystem's handler (spec §4.3: registration happens once at
// startup, before the reactor starts accepting connections).
func RegisterHandlers(ctx *Context) {
	ctx.registerLifecycleHandlers()
	ctx.registerMailboxHandlers()
	ctx.registerStateHandlers()
	ctx.registerEventHandlers()
	ctx.registerPermissionHandlers()
	ctx.registerAsyncHandlers()
	ctx.registerWorldHandlers()
	ctx.registerAuditHandlers()
	ctx.registerMetricsHandlers()
	ctx.registerRelayHandlers()
}

// decode unmarshals payload into dst, returning a ready-to-send
// INVALID_REQUEST response body on failure. Handlers call this first
// and return immediately if ok is false (spec §4.15: malformed
// payload is reported, never a framing error).
func decode(payload json.RawMessage, dst any) (body json.RawMessage, ok bool) {
	if len(payload) == 0 {
		return encode(opcode.Fail(opcode.ErrInvalidRequest, "missing request body")), false
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return encode(opcode.Fail(opcode.ErrInvalidRequest, "invalid JSON: "+err.Error())), false
	}
	return nil, true
}

// encode marshals v, falling back to a generic IO_FAILURE body if v
// itself can't be marshaled (should never happen for the concrete
// response types this package defines).
func encode(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"success":false,"error_kind":"IO_FAILURE","error":"internal: marshaling response"}`)
	}
	return data
}

func fail(kind opcode.ErrorKind, message string) json.RawMessage {
	return encode(opcode.Fail(kind, message))
}
