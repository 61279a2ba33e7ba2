// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package frame implements the kernel's length-prefixed IPC framing
// (spec §4.1): a fixed binary header followed by an opaque payload.
//
// A frame is HEADER || PAYLOAD. The header is 14 bytes, all integers
// little-endian:
//
//	offset  size  field
//	0       4     magic   ("CLV1")
//	4       1     version (currently 1)
//	5       1     opcode
//	6       4     agent_id
//	10      4     payload_length
//
// [ReadFrame] reads the full header from an io.Reader, validates
// magic/version/length against [MaxPayloadLength], then reads exactly
// that many payload bytes. Any
// validation failure returns a [MalformedError] — the caller (the
// reactor, per spec §4.2) closes only the offending connection; other
// connections are unaffected.
//
// The payload itself is opaque to this package. By convention (spec
// §3, §6) it is a UTF-8 JSON object, decoded by lib/opcode request and
// response types.
package frame
