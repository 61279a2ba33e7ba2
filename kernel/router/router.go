// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/clove-kernel/clove/lib/opcode"
)

// HandlerFunc processes one decoded syscall request for a specific
// opcode (spec §4.3). Handlers MUST NOT block (spec §5 "Suspension
// points") — anything that would block is submitted to
// kernel/async.Manager instead, returning immediately.
type HandlerFunc func(agentID uint32, payload json.RawMessage) json.RawMessage

// Router is the kernel's dispatch table. Safe for concurrent use:
// Register and Dispatch both take the table's lock. Registration
// happens once at startup before the reactor starts accepting
// connections (spec §4.3 "the router is not reconfigured at runtime").
type Router struct {
	mu       sync.RWMutex
	handlers map[opcode.Opcode]HandlerFunc
}

// New creates an empty Router.
func New() *Router {
	return &Router{handlers: make(map[opcode.Opcode]HandlerFunc)}
}

// Register binds handler to op. Panics on a duplicate registration —
// a programming error, not a runtime condition (grounded on
// lib/service/socket.go's SocketServer.Handle).
func (r *Router) Register(op opcode.Opcode, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[op]; exists {
		panic(fmt.Sprintf("router: duplicate handler registered for opcode %s", op))
	}
	r.handlers[op] = handler
}

// Dispatch routes one request to its handler, returning the opcode and
// payload to frame back to the caller. Unknown opcodes are echoed back
// unchanged — clients must treat an echo as an error (spec §4.3).
func (r *Router) Dispatch(agentID uint32, op opcode.Opcode, payload json.RawMessage) (opcode.Opcode, json.RawMessage) {
	r.mu.RLock()
	handler, ok := r.handlers[op]
	r.mu.RUnlock()

	if !ok {
		return op, payload
	}
	return op, handler(agentID, payload)
}

// Registered reports whether op has a handler, for tests and
// diagnostics.
func (r *Router) Registered(op opcode.Opcode) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[op]
	return ok
}
