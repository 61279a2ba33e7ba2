// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit implements the kernel's execution log (spec §4.14): an
// append-only, size-capped ring of category-tagged entries, plus a
// recording/export/import/replay cycle for capturing and later
// re-driving a batch of entries.
//
// Grounded on original_source/src/kernel/syscalls/audit.cpp (the
// GET_AUDIT_LOG/SET_AUDIT_CONFIG handlers and the eight log_* category
// toggles) for the config shape and category set. Export batches are
// CBOR-encoded via lib/codec, zstd-compressed and BLAKE3-digested the
// way lib/artifactstore/compress.go and lib/artifact/hash.go do for
// artifact chunks — the same ecosystem libraries, reused for a log
// batch instead of a content-addressed blob. Replay is stepped one
// entry per Tick call, mirroring kernel/supervisor's tick-driven
// design rather than running on its own goroutine.
package audit
