// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package mailbox implements the kernel's per-agent message registry
// (spec §4.4): a dense agent id space, an optional unique name bound
// to at most one id at a time, and one FIFO inbox per agent.
//
// Grounded on the leaf-lock store pattern every Bureau store follows
// (lib/authorization.Index, observe.RingBuffer — each owns a single
// mutex guarding a plain Go map; no store calls into another while
// holding its own lock).
package mailbox
