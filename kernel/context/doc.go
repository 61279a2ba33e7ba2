// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package context composes every kernel subsystem into the single
// "kernel context" value spec §9 ("Global state") describes: one
// struct holding the mailbox registry, state store, event bus,
// permissions store, async task manager, world engine, agent process
// table, restart supervisor, audit log, and metrics registry, plus the
// code that registers a handler for every opcode in lib/opcode against
// a kernel/router.Router.
//
// Grounded on cmd/bureau-daemon's Daemon struct (main.go/command.go):
// one composition root constructed once in main(), holding every
// subsystem as a field and wiring them together, with no subsystem
// directly importing another — kernel/context is the only package
// that imports every leaf package under kernel/.
package context
