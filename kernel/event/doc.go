// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package event implements the kernel's typed publish/subscribe bus
// (spec §4.6): subscribers declare a set of KernelEventType values,
// emit appends to every matched subscriber's queue, and poll drains a
// subscriber's queue FIFO.
//
// Grounded on observe.RingBuffer's single-lock store shape: one lock
// per store, no blocking, no fan-out goroutine — emit is synchronous and
// non-blocking from the caller's point of view (spec §4.6 "there is
// no fan-out thread").
package event
