// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package state implements the kernel's scoped key-value store with
// TTL (spec §4.5): global, agent-private, and session scopes sharing
// one physical map, with lazy expiry on access.
//
// Grounded on the single-lock store pattern lib/authorization.Index and
// observe.RingBuffer both follow: one mutex per store, no store calls
// into another while holding it (spec §5 "leaf locks").
package state
