// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	kctx "github.com/clove-kernel/clove/kernel/context"
	"github.com/clove-kernel/clove/lib/clock"
	"github.com/clove-kernel/clove/lib/frame"
	"github.com/clove-kernel/clove/lib/opcode"
)

func testServer(t *testing.T) (socketPath string, stop chan struct{}) {
	ctx := kctx.New(clock.Real(), slog.New(slog.NewTextHandler(io.Discard, nil)), kctx.DefaultConfig())
	kctx.RegisterHandlers(ctx)

	socketPath = filepath.Join(t.TempDir(), "clove.sock")
	srv := New(Config{SocketPath: socketPath, TickInterval: 10 * time.Millisecond}, ctx, slog.New(slog.NewTextHandler(io.Discard, nil)))

	stop = make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(stop)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", socketPath); err == nil {
			conn.Close()
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Cleanup(func() {
		close(stop)
		<-done
	})
	return socketPath, stop
}

func TestServerAssignsAgentIDOnFirstFrame(t *testing.T) {
	socketPath, _ := testServer(t)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req := struct {
		Name string `json:"name"`
	}{Name: "alice"}
	payload, _ := json.Marshal(req)

	if err := frame.WriteFrame(conn, frame.Frame{Opcode: byte(opcode.REGISTER), AgentID: 0, Payload: payload}); err != nil {
		t.Fatalf("write: %v", err)
	}

	resp, err := frame.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.AgentID == 0 {
		t.Fatalf("expected a nonzero assigned agent id, got 0")
	}

	var body struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(resp.Payload, &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !body.Success {
		t.Errorf("REGISTER failed: %s", resp.Payload)
	}
}

func TestServerRoundTripsMultipleFrames(t *testing.T) {
	socketPath, _ := testServer(t)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	storeReq, _ := json.Marshal(map[string]any{"key": "x", "value": 42, "scope": "global"})
	if err := frame.WriteFrame(conn, frame.Frame{Opcode: byte(opcode.STORE), Payload: storeReq}); err != nil {
		t.Fatalf("write STORE: %v", err)
	}
	storeResp, err := frame.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read STORE response: %v", err)
	}
	var storeBody struct {
		Success bool `json:"success"`
	}
	json.Unmarshal(storeResp.Payload, &storeBody)
	if !storeBody.Success {
		t.Fatalf("STORE failed: %s", storeResp.Payload)
	}
	agentID := storeResp.AgentID

	fetchReq, _ := json.Marshal(map[string]any{"key": "x"})
	if err := frame.WriteFrame(conn, frame.Frame{Opcode: byte(opcode.FETCH), AgentID: agentID, Payload: fetchReq}); err != nil {
		t.Fatalf("write FETCH: %v", err)
	}
	fetchResp, err := frame.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read FETCH response: %v", err)
	}
	var fetchBody struct {
		Success bool            `json:"success"`
		Exists  bool            `json:"exists"`
		Value   json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(fetchResp.Payload, &fetchBody); err != nil {
		t.Fatalf("unmarshal FETCH response: %v", err)
	}
	if !fetchBody.Exists || string(fetchBody.Value) != "42" {
		t.Errorf("FETCH response = %s, want exists=true value=42", fetchResp.Payload)
	}
}

func TestServerClosesConnectionOnMalformedFrame(t *testing.T) {
	socketPath, _ := testServer(t)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("not a valid clove frame header")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	_, err = conn.Read(buf)
	if err == nil {
		t.Fatalf("expected connection to be closed after a malformed frame")
	}
}

func TestServerUnknownOpcodeEchoes(t *testing.T) {
	socketPath, _ := testServer(t)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	payload := json.RawMessage(`{"anything":1}`)
	if err := frame.WriteFrame(conn, frame.Frame{Opcode: 200, Payload: payload}); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp, err := frame.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Opcode != 200 || string(resp.Payload) != string(payload) {
		t.Errorf("echo response = opcode %d payload %s, want opcode 200 payload %s", resp.Opcode, resp.Payload, payload)
	}
}
