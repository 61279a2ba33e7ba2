// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package async implements the kernel's asynchronous task manager
// (spec §4.8): a bounded worker pool for syscalls that would block
// the reactor, a monotonic request id sequence, and a per-agent
// result queue drained by polling.
//
// Grounded on original_source/src/kernel/async_task_manager.{hpp,cpp}:
// a fixed worker count, a single task queue guarded by a mutex plus
// condition variable, and a results map keyed by agent id — translated
// into Go as a buffered channel of tasks consumed by N goroutines, an
// atomic counter, and a mutex-guarded map, the idiomatic replacement
// for a condvar-guarded deque (Bureau has no equivalent bounded
// worker pool to borrow the shape from, so this follows
// async_task_manager's own structure directly).
//
// Submission is additionally rate limited per agent with
// golang.org/x/time/rate (spec's RESOURCE_WARNING supplement, see
// SPEC_FULL.md), guarding against EXEC/HTTP flood from a single agent.
package async
