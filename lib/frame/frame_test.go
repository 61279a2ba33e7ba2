// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	original := Frame{Opcode: 42, AgentID: 7, Payload: []byte(`{"hello":"world"}`)}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, original); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	if got.Opcode != original.Opcode || got.AgentID != original.AgentID || !bytes.Equal(got.Payload, original.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, original)
	}
}

func TestWriteReadEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Opcode: 1, AgentID: 1}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got.Payload) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(got.Payload))
	}
}

func TestReadFrameBadMagic(t *testing.T) {
	buf := bytes.NewBuffer(make([]byte, HeaderSize))
	_, err := ReadFrame(buf)
	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *MalformedError, got %v", err)
	}
}

func TestReadFrameOverLengthPayload(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, HeaderSize)
	copy(header[0:4], Magic[:])
	header[4] = Version
	header[5] = 0
	buf.Write(header)
	// Overwrite the length field to declare an oversized payload
	// without actually writing MaxPayloadLength+1 bytes.
	raw := buf.Bytes()
	raw[10] = 0xff
	raw[11] = 0xff
	raw[12] = 0xff
	raw[13] = 0x7f

	_, err := ReadFrame(bytes.NewReader(raw))
	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *MalformedError for over-length payload, got %v", err)
	}
}

func TestReadFrameShortHeaderReturnsIOError(t *testing.T) {
	buf := bytes.NewBuffer([]byte{1, 2, 3})
	_, err := ReadFrame(buf)
	if !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		t.Fatalf("expected an I/O error for a short header, got %v", err)
	}
}

func TestWriteFrameRejectsOverLengthPayload(t *testing.T) {
	oversized := make([]byte, MaxPayloadLength+1)
	var buf bytes.Buffer
	err := WriteFrame(&buf, Frame{Payload: oversized})
	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *MalformedError, got %v", err)
	}
}
