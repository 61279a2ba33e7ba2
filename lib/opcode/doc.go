// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package opcode defines the kernel's closed syscall opcode
// enumeration (spec §6) and the JSON payload conventions shared by
// every handler: a uniform {"success": bool, "error": "..."} failure
// shape (spec §4.15) and the closed error-kind vocabulary (spec §7).
//
// Per-opcode request and response bodies are concrete Go types defined
// beside their handlers in kernel/context (state.go, mailbox.go, and so
// on) — this package holds only what every
// opcode shares, keeping per-opcode payload schemas decoupled from
// in-memory types as spec §9 asks for.
package opcode
