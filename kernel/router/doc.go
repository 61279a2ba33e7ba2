// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package router implements the kernel's syscall dispatch table (spec
// §4.3): a fixed opcode→handler map, registered once at startup by
// each subsystem and never reconfigured at runtime.
//
// Grounded on lib/service/socket.go's SocketServer.Handle: a
// map[action]ActionFunc built via one-time Register calls that panics
// on a duplicate registration, the same shape spec §4.3 describes for
// the syscall table. Unlike SocketServer's one-shot-per-connection
// action dispatch, a Router handles many requests per connection
// (kernel/reactor calls Dispatch once per decoded frame) and falls
// back to echoing unknown opcodes rather than an error response, per
// spec §4.3's "clients should treat this as an error" convention.
package router
