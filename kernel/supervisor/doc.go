// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor implements the kernel's agent lifecycle
// supervisor (spec §4.12): restart policy configuration, exponential
// backoff, and a periodic tick that reaps dead agents and enqueues
// pending restarts.
//
// The backoff formula and clock-injected retry loop are grounded on
// lib/service.RunSyncLoop's exponential-backoff pattern, adapted from
// a single continuous retry loop into discrete tick-driven scheduling
// so the reactor's timer tick can drive it without a dedicated
// goroutine per agent.
package supervisor
