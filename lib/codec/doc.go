// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the kernel's standard CBOR encoding
// configuration, used wherever the kernel needs a compact,
// deterministic binary snapshot rather than a syscall payload.
//
// Clove uses two serialization formats with a clear boundary:
//
//   - JSON for the syscall wire protocol (spec §4.1, §6): every
//     frame's payload is, by convention, a UTF-8 JSON object.
//   - CBOR for on-demand snapshots: audit log export/import (spec
//     §4.14) and world snapshot/restore (spec §4.11). These are
//     binary blobs handed back through a syscall response (usually
//     base64 or length-prefixed within the JSON envelope), never
//     syscall payloads themselves.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. Same
// logical data always produces identical bytes, which makes exported
// audit batches content-addressable (kernel/audit hashes them with
// BLAKE3).
package codec
