// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/json"
	"net/http"

	"github.com/clove-kernel/clove/kernel/audit"
	"github.com/clove-kernel/clove/kernel/event"
	"github.com/clove-kernel/clove/kernel/relay"
	"github.com/clove-kernel/clove/lib/opcode"
)

// registerRelayHandlers wires the TUNNEL_* opcodes (spec §4.13, §6)
// onto whatever kernel/relay.Bridge is currently attached. Absent a
// connection, TUNNEL_STATUS/TUNNEL_LIST_REMOTES report an empty/
// disconnected state rather than failing. TUNNEL_DISCONNECT and
// TUNNEL_CONFIG fail with NOT_FOUND when no bridge is attached;
// TUNNEL_CONNECT creates and attaches one, and fails with CONFLICT if
// one is already attached.
func (c *Context) registerRelayHandlers() {
	c.Router.Register(opcode.TUNNEL_CONNECT, c.handleTunnelConnect)
	c.Router.Register(opcode.TUNNEL_DISCONNECT, c.handleTunnelDisconnect)
	c.Router.Register(opcode.TUNNEL_STATUS, c.handleTunnelStatus)
	c.Router.Register(opcode.TUNNEL_LIST_REMOTES, c.handleTunnelListRemotes)
	c.Router.Register(opcode.TUNNEL_CONFIG, c.handleTunnelConfig)
}

type tunnelConnectRequest struct {
	URL         string          `json:"url"`
	ProxyBinary string          `json:"proxy_binary,omitempty"`
	Transport   string          `json:"transport,omitempty"` // "pipe" (default) or "websocket"
	Config      json.RawMessage `json:"config,omitempty"`
}

func (c *Context) handleTunnelConnect(callerID uint32, payload json.RawMessage) json.RawMessage {
	perms := c.Permissions.GetOrCreate(callerID)
	if !perms.Capabilities.CanNetwork {
		return fail(opcode.ErrPermissionDenied, "caller lacks can_network")
	}

	var req tunnelConnectRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	if req.URL == "" {
		return fail(opcode.ErrInvalidRequest, "url must be non-empty")
	}

	if c.relayOrNil() != nil {
		return fail(opcode.ErrConflict, "a relay tunnel is already attached")
	}

	bridge := relay.New(c.relayDispatch, c.relayOnEvent, c.Logger)
	c.AttachRelay(bridge)

	var err error
	switch req.Transport {
	case "websocket":
		err = bridge.ConnectWS(req.URL, http.Header{}, req.Config)
	default:
		proxyBinary := req.ProxyBinary
		if proxyBinary == "" {
			proxyBinary = "clove-relay-proxy"
		}
		err = bridge.Connect(proxyBinary, req.URL, req.Config)
	}
	if err != nil {
		c.AttachRelay(nil)
		c.Audit.Log(audit.CategoryNetwork, callerID, "TUNNEL_CONNECT", mustJSON(map[string]any{"error": err.Error()}), false)
		return fail(opcode.ErrIOFailure, err.Error())
	}

	c.Audit.Log(audit.CategoryNetwork, callerID, "TUNNEL_CONNECT", mustJSON(map[string]any{"url": req.URL}), true)
	return encode(opcode.OK())
}

func (c *Context) handleTunnelDisconnect(callerID uint32, payload json.RawMessage) json.RawMessage {
	bridge := c.relayOrNil()
	if bridge == nil {
		return fail(opcode.ErrNotFound, "no relay tunnel attached")
	}
	if err := bridge.Disconnect(); err != nil {
		return fail(opcode.ErrIOFailure, err.Error())
	}
	c.AttachRelay(nil)
	c.Audit.Log(audit.CategoryNetwork, callerID, "TUNNEL_DISCONNECT", nil, true)
	return encode(opcode.OK())
}

func (c *Context) handleTunnelStatus(callerID uint32, payload json.RawMessage) json.RawMessage {
	bridge := c.relayOrNil()
	if bridge == nil {
		data, _ := json.Marshal(relay.Status{})
		return prependSuccess(data)
	}
	return prependSuccess(bridge.Status())
}

func (c *Context) handleTunnelListRemotes(callerID uint32, payload json.RawMessage) json.RawMessage {
	bridge := c.relayOrNil()
	if bridge == nil {
		return encode(struct {
			opcode.Response
			Remotes []relay.RemoteInfo `json:"remotes"`
		}{Response: opcode.OK()})
	}
	return prependSuccess(bridge.Remotes())
}

func (c *Context) handleTunnelConfig(callerID uint32, payload json.RawMessage) json.RawMessage {
	bridge := c.relayOrNil()
	if bridge == nil {
		return fail(opcode.ErrNotFound, "no relay tunnel attached")
	}
	if err := bridge.Configure(payload); err != nil {
		return fail(opcode.ErrIOFailure, err.Error())
	}
	return encode(opcode.OK())
}

// relayDispatch is kernel/relay.DispatchFunc: it re-injects a remote
// agent's forwarded syscall into the local router via the same path
// local connections use (spec §4.13).
func (c *Context) relayDispatch(agentID uint32, op byte, payload json.RawMessage) json.RawMessage {
	return c.DispatchSyscall(agentID, opcode.Opcode(op), payload)
}

// relayOnEvent republishes a bridge event (reconnect/disconnect/error
// etc., spec §6) onto the kernel event bus as CUSTOM, since none of
// these are members of the closed KernelEventType enumeration (spec
// §4.6 "Unknown event names ... degrade to CUSTOM").
func (c *Context) relayOnEvent(name string, data json.RawMessage) {
	wrapped, _ := json.Marshal(map[string]any{"relay_event": name, "data": data})
	c.Events.Emit(event.Custom, wrapped, 0)
}

// prependSuccess wraps an already-marshaled JSON object with
// "success": true by re-decoding and re-encoding through a generic
// map, used for the relay package's own response types which don't
// embed opcode.Response (kernel/relay has no dependency on lib/opcode,
// keeping it transport-agnostic and reusable outside this kernel).
func prependSuccess(data json.RawMessage) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return encode(opcode.OK())
	}
	fields["success"] = json.RawMessage("true")
	return encode(fields)
}
