// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type sampleSnapshot struct {
	WorldID string `cbor:"world_id"`
	Files   int    `cbor:"files"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleSnapshot{WorldID: "sandbox-0001", Files: 3}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleSnapshot
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	original := sampleSnapshot{WorldID: "sandbox-0002", Files: 9}

	first, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("Marshal is not deterministic across calls")
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	var buf bytes.Buffer
	encoder := NewEncoder(&buf)

	values := []sampleSnapshot{{WorldID: "a", Files: 1}, {WorldID: "b", Files: 2}}
	for _, v := range values {
		if err := encoder.Encode(v); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buf)
	for _, want := range values {
		var got sampleSnapshot
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got != want {
			t.Errorf("Decode = %+v, want %+v", got, want)
		}
	}
}
