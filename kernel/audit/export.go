// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/clove-kernel/clove/lib/codec"
)

// zstdEncoder and zstdDecoder are package-level and reused across
// calls, matching lib/artifactstore/compress.go's rationale: both
// types are safe for concurrent use and repeated initialization is
// wasted work.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("audit: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("audit: zstd decoder initialization failed: " + err.Error())
	}
}

// Batch is an exported, digest-addressed set of log entries (spec
// §4.14's export; SPEC_FULL.md's domain-stack wiring for
// github.com/zeebo/blake3 and github.com/klauspost/compress).
type Batch struct {
	Compressed []byte
	Digest     [32]byte
}

// Export encodes entries as CBOR, compresses the result with zstd,
// and returns the compressed bytes alongside a BLAKE3 digest of the
// compressed payload — the same content-addressing role
// lib/artifact/hash.go plays for artifact chunks, applied here to a
// log batch instead.
func Export(entries []Entry) (Batch, error) {
	encoded, err := codec.Marshal(entries)
	if err != nil {
		return Batch{}, fmt.Errorf("audit: encoding export batch: %w", err)
	}
	compressed := zstdEncoder.EncodeAll(encoded, nil)
	digest := blake3.Sum256(compressed)
	return Batch{Compressed: compressed, Digest: digest}, nil
}

// Decode verifies b's digest and decodes it back into entries, for
// use with Log.Import (spec §4.14's import).
func Decode(b Batch) ([]Entry, error) {
	if got := blake3.Sum256(b.Compressed); got != b.Digest {
		return nil, ErrDigestMismatch
	}
	decoded, err := zstdDecoder.DecodeAll(b.Compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("audit: decompressing export batch: %w", err)
	}
	var entries []Entry
	if err := codec.Unmarshal(decoded, &entries); err != nil {
		return nil, fmt.Errorf("audit: decoding export batch: %w", err)
	}
	return entries, nil
}
