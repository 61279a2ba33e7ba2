// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/clove-kernel/clove/kernel/event"
	"github.com/clove-kernel/clove/kernel/world"
	"github.com/clove-kernel/clove/lib/codec"
	"github.com/clove-kernel/clove/lib/opcode"
)

func (c *Context) registerWorldHandlers() {
	c.Router.Register(opcode.WORLD_CREATE, c.handleWorldCreate)
	c.Router.Register(opcode.WORLD_DESTROY, c.handleWorldDestroy)
	c.Router.Register(opcode.WORLD_LIST, c.handleWorldList)
	c.Router.Register(opcode.WORLD_JOIN, c.handleWorldJoin)
	c.Router.Register(opcode.WORLD_LEAVE, c.handleWorldLeave)
	c.Router.Register(opcode.WORLD_EVENT, c.handleWorldEvent)
	c.Router.Register(opcode.WORLD_STATE, c.handleWorldState)
	c.Router.Register(opcode.WORLD_SNAPSHOT, c.handleWorldSnapshot)
	c.Router.Register(opcode.WORLD_RESTORE, c.handleWorldRestore)

	c.Router.Register(opcode.READ, c.handleRead)
	c.Router.Register(opcode.WRITE, c.handleWrite)
	c.Router.Register(opcode.HTTP, c.handleHTTP)
}

type worldCreateRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	VFS         world.VFSConfig   `json:"virtual_filesystem,omitempty"`
	Network     world.NetworkConfig `json:"network,omitempty"`
	Chaos       world.ChaosConfig `json:"chaos,omitempty"`
}

type worldCreateResponse struct {
	opcode.Response
	WorldID string `json:"world_id"`
}

func (c *Context) handleWorldCreate(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req worldCreateRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	if req.Name == "" {
		return fail(opcode.ErrInvalidRequest, "name must be non-empty")
	}
	id := c.Worlds.CreateWorld(req.Name, world.Config{
		Name: req.Name, Description: req.Description,
		VFS: req.VFS, Network: req.Network, Chaos: req.Chaos,
	})
	c.publishCounts()
	return encode(worldCreateResponse{Response: opcode.OK(), WorldID: id})
}

type worldDestroyRequest struct {
	WorldID string `json:"world_id"`
	Force   bool   `json:"force,omitempty"`
}

func (c *Context) handleWorldDestroy(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req worldDestroyRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	if err := c.Worlds.DestroyWorld(req.WorldID, req.Force); err != nil {
		switch err.(type) {
		case *world.ErrNotEmpty:
			return fail(opcode.ErrConflict, err.Error())
		default:
			return fail(opcode.ErrNotFound, err.Error())
		}
	}
	c.publishCounts()
	return encode(opcode.OK())
}

type worldSummary struct {
	WorldID     string       `json:"world_id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Metrics     world.Metrics `json:"metrics"`
}

type worldListResponse struct {
	opcode.Response
	Worlds []worldSummary `json:"worlds"`
}

func (c *Context) handleWorldList(callerID uint32, payload json.RawMessage) json.RawMessage {
	var out []worldSummary
	for _, w := range c.Worlds.ListWorlds() {
		out = append(out, worldSummary{WorldID: w.ID, Name: w.Name, Description: w.Description, Metrics: w.Metrics()})
	}
	return encode(worldListResponse{Response: opcode.OK(), Worlds: out})
}

type worldJoinRequest struct {
	WorldID string `json:"world_id"`
}

func (c *Context) handleWorldJoin(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req worldJoinRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	if err := c.Worlds.JoinWorld(callerID, req.WorldID); err != nil {
		switch err.(type) {
		case *world.ErrAlreadyInWorld:
			return fail(opcode.ErrConflict, err.Error())
		default:
			return fail(opcode.ErrNotFound, err.Error())
		}
	}
	return encode(opcode.OK())
}

func (c *Context) handleWorldLeave(callerID uint32, payload json.RawMessage) json.RawMessage {
	c.Worlds.LeaveWorld(callerID)
	return encode(opcode.OK())
}

type worldEventRequest struct {
	WorldID string          `json:"world_id"`
	Event   string          `json:"event"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (c *Context) handleWorldEvent(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req worldEventRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	if err := c.Worlds.InjectEvent(req.WorldID, world.ActiveEvent(req.Event), req.Params); err != nil {
		return fail(opcode.ErrNotFound, err.Error())
	}
	return encode(opcode.OK())
}

type worldStateRequest struct {
	WorldID string `json:"world_id,omitempty"`
}

type worldStateResponse struct {
	opcode.Response
	WorldID string        `json:"world_id"`
	Agents  []uint32      `json:"agents"`
	Metrics world.Metrics `json:"metrics"`
}

func (c *Context) handleWorldState(callerID uint32, payload json.RawMessage) json.RawMessage {
	req := worldStateRequest{}
	if len(payload) > 0 {
		if body, ok := decode(payload, &req); !ok {
			return body
		}
	}
	worldID := req.WorldID
	if worldID == "" {
		var ok bool
		worldID, ok = c.Worlds.AgentWorld(callerID)
		if !ok {
			return fail(opcode.ErrNotFound, "caller has not joined a world")
		}
	}
	w, ok := c.Worlds.GetWorld(worldID)
	if !ok {
		return fail(opcode.ErrNotFound, "unknown world "+worldID)
	}
	return encode(worldStateResponse{Response: opcode.OK(), WorldID: worldID, Agents: w.Agents(), Metrics: w.Metrics()})
}

type worldSnapshotRequest struct {
	WorldID string `json:"world_id"`
}

type worldSnapshotResponse struct {
	opcode.Response
	Snapshot string `json:"snapshot"` // base64 CBOR (spec §4.11 "serialize the whole world")
}

func (c *Context) handleWorldSnapshot(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req worldSnapshotRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	snap, err := c.Worlds.SnapshotWorld(req.WorldID)
	if err != nil {
		return fail(opcode.ErrNotFound, err.Error())
	}
	data, err := codec.Marshal(snap)
	if err != nil {
		return fail(opcode.ErrIOFailure, "encoding snapshot: "+err.Error())
	}
	return encode(worldSnapshotResponse{Response: opcode.OK(), Snapshot: base64.StdEncoding.EncodeToString(data)})
}

type worldRestoreRequest struct {
	Snapshot string `json:"snapshot"`
	WorldID  string `json:"world_id,omitempty"`
}

func (c *Context) handleWorldRestore(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req worldRestoreRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	data, err := base64.StdEncoding.DecodeString(req.Snapshot)
	if err != nil {
		return fail(opcode.ErrInvalidRequest, "snapshot is not valid base64: "+err.Error())
	}
	var snap world.Snapshot
	if err := codec.Unmarshal(data, &snap); err != nil {
		return fail(opcode.ErrInvalidRequest, "snapshot is not valid CBOR: "+err.Error())
	}
	id := c.Worlds.RestoreWorld(snap, req.WorldID)
	c.publishCounts()
	return encode(worldCreateResponse{Response: opcode.OK(), WorldID: id})
}

// --- File and network syscalls, mediated through the caller's joined
// world when it has one (spec §4.11 "a file/network syscall from a
// world member is routed through that world's VFS/NetworkMock/chaos
// engine instead of the real filesystem/network").

type readRequest struct {
	Path string `json:"path"`
}

type readResponse struct {
	opcode.Response
	Content string `json:"content,omitempty"`
	Virtual bool   `json:"virtual"`
	World   string `json:"world"`
}

// handleRead is synchronous: the in-memory VFS never performs real
// I/O, so there is no suspension point to hide behind an async
// submission (spec §5 "Suspension points" lists only REAL I/O as
// blocking).
func (c *Context) handleRead(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req readRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}

	worldID, joined := c.Worlds.AgentWorld(callerID)
	if !joined {
		return fail(opcode.ErrUnavailable, "caller has not joined a world; real filesystem access is not exposed as a syscall")
	}
	w, ok := c.Worlds.GetWorld(worldID)
	if !ok {
		return fail(opcode.ErrNotFound, "unknown world "+worldID)
	}

	perms := c.Permissions.GetOrCreate(callerID)
	if !perms.Capabilities.CanRead(req.Path) {
		return fail(opcode.ErrPermissionDenied, "path not in readable_paths")
	}
	if w.Chaos.Enabled() && w.Chaos.ShouldFailRead(req.Path) {
		return fail(opcode.ErrChaosFailure, "Simulated read failure (chaos)")
	}

	content, found := w.VFS.Read(req.Path)
	if !found {
		return fail(opcode.ErrNotFound, "no such path "+req.Path)
	}
	return encode(readResponse{Response: opcode.OK(), Content: content, Virtual: true, World: worldID})
}

type writeRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append,omitempty"`
}

func (c *Context) handleWrite(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req writeRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}

	worldID, joined := c.Worlds.AgentWorld(callerID)
	if !joined {
		return fail(opcode.ErrUnavailable, "caller has not joined a world; real filesystem access is not exposed as a syscall")
	}
	w, ok := c.Worlds.GetWorld(worldID)
	if !ok {
		return fail(opcode.ErrNotFound, "unknown world "+worldID)
	}

	perms := c.Permissions.GetOrCreate(callerID)
	if !perms.Capabilities.CanWrite(req.Path) {
		return fail(opcode.ErrPermissionDenied, "path not in writable_paths")
	}
	if w.Chaos.Enabled() && w.Chaos.ShouldFailWrite(req.Path) {
		return fail(opcode.ErrChaosFailure, "Simulated write failure (chaos)")
	}

	if !w.VFS.Write(req.Path, req.Content, req.Append) {
		return fail(opcode.ErrPermissionDenied, "path is read-only or outside writable_patterns")
	}
	c.Events.Emit(event.StateChanged, mustJSON(map[string]any{"path": req.Path, "world_id": worldID}), callerID)
	return encode(opcode.OK())
}

type httpRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Body    string            `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type httpResult struct {
	opcode.Response
	StatusCode int               `json:"status_code"`
	Body       string            `json:"body"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// handleHTTP submits the call to the async manager: even a mocked
// response carries simulated latency (spec §4.10), and a real
// passthrough request is genuine blocking I/O either way (spec §5
// "Suspension points").
func (c *Context) handleHTTP(callerID uint32, payload json.RawMessage) json.RawMessage {
	var req httpRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	if req.URL == "" {
		return fail(opcode.ErrInvalidRequest, "url must be non-empty")
	}
	perms := c.Permissions.GetOrCreate(callerID)
	if !perms.Capabilities.CanNetwork {
		return fail(opcode.ErrPermissionDenied, "caller lacks can_network")
	}

	method := req.Method
	if method == "" {
		method = "GET"
	}

	requestID := c.Async.NextRequestID()
	err := c.Async.Submit(callerID, requestID, opcode.HTTP, func() json.RawMessage {
		return c.performHTTP(callerID, req.URL, method)
	})
	if err != nil {
		return fail(opcode.ErrUnavailable, err.Error())
	}
	return encode(map[string]any{"success": true, "submitted": true, "request_id": requestID})
}

func (c *Context) performHTTP(callerID uint32, url, method string) json.RawMessage {
	worldID, joined := c.Worlds.AgentWorld(callerID)
	if !joined {
		return encode(httpResult{Response: opcode.Fail(opcode.ErrUnavailable, "caller has not joined a world; real network access is not exposed as a syscall")})
	}
	w, ok := c.Worlds.GetWorld(worldID)
	if !ok {
		return encode(httpResult{Response: opcode.Fail(opcode.ErrNotFound, "unknown world "+worldID)})
	}

	if w.Chaos.Enabled() {
		time.Sleep(w.Chaos.Latency())
		if w.Chaos.ShouldFailNetwork(url) {
			return encode(httpResult{Response: opcode.Fail(opcode.ErrChaosFailure, "simulated network failure")})
		}
	}

	if resp, intercepted := w.Network.GetResponse(url, method); intercepted {
		if resp.LatencyMs > 0 {
			time.Sleep(time.Duration(resp.LatencyMs) * time.Millisecond)
		}
		return encode(httpResult{Response: opcode.OK(), StatusCode: resp.StatusCode, Body: resp.Body, Headers: resp.Headers})
	}

	return encode(httpResult{Response: opcode.Fail(opcode.ErrUnavailable, "request was not intercepted and passthrough networking is not wired")})
}
