// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the kernel's side of the relay tunnel
// bridge (spec §4.13): a co-located proxy subprocess wired through two
// pipes, speaking newline-delimited JSON (spec §6 "Tunnel subprocess
// IPC"). Remote-agent syscalls the proxy forwards are re-injected into
// the local syscall router as if they came from a local agent; the
// produced response travels back the same way, base64-encoded.
//
// Grounded on cmd/bureau-launcher/proxy.go's subprocess-with-piped-
// stdio shape (spawn, pipe ownership, reap goroutine), generalized
// from Bureau's one-shot credential handoff to the kernel's persistent
// bidirectional request/response/event stream. An optional WebSocket
// control channel (github.com/gorilla/websocket, see
// cvsloane-agent-commander/agents/agentd/internal/ws/client.go) fronts
// the same request vocabulary for deployments that run the proxy over
// HTTP instead of as a child process.
package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DispatchFunc re-injects a remote agent's syscall into the local
// syscall router, exactly as kernel/reactor does for a real connection
// (spec §4.13 "re-injected into the local syscall router as if they
// came from a local agent"). Returns the JSON response body to send
// back to the proxy.
type DispatchFunc func(agentID uint32, opcode byte, payload json.RawMessage) json.RawMessage

// request is one JSON-RPC-ish call sent to the proxy (spec §6).
type request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// reply is what the proxy sends back for a request, correlated by ID.
type reply struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// inboundEvent is an unsolicited push from the proxy (spec §6 events:
// agent_connected, agent_disconnected, syscall, disconnected,
// reconnected, error, ready).
type inboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// syscallEventData is an inboundEvent's Data when Event == "syscall":
// a remote agent's request, with its payload base64-encoded by the
// proxy per spec §6.
type syscallEventData struct {
	AgentID uint32 `json:"agent_id"`
	Opcode  byte   `json:"opcode"`
	Payload string `json:"payload"` // base64
}

// Status is the TUNNEL_STATUS response shape.
type Status struct {
	Connected bool   `json:"connected"`
	URL       string `json:"url,omitempty"`
	Remotes   int    `json:"remote_count"`
}

// RemoteInfo is one entry of TUNNEL_LIST_REMOTES.
type RemoteInfo struct {
	AgentID    uint32    `json:"agent_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Bridge owns the relay proxy subprocess and its two pipes. Safe for
// concurrent use. Reconnection is explicitly out of scope here (spec
// §4.13 "Reconnect/disconnect events are surfaced but not retried
// inside the bridge") — a disconnect just marks the bridge
// disconnected and emits an event; TUNNEL_CONNECT must be called again
// to resume.
type Bridge struct {
	dispatch DispatchFunc
	onEvent  func(name string, data json.RawMessage)
	logger   *slog.Logger

	nextRequestID atomic.Uint64

	mu        sync.Mutex
	url       string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	waiters   map[uint64]chan reply
	connected bool
	remotes   map[uint32]time.Time

	wsConn *websocket.Conn
}

// New creates a Bridge. onEvent is called for every inbound event the
// proxy pushes that isn't a correlated reply or a "syscall" (those are
// handled internally) — typically wired to kernel/event.Bus so
// TUNNEL_* subscribers see reconnect/disconnect/error events.
func New(dispatch DispatchFunc, onEvent func(name string, data json.RawMessage), logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		dispatch: dispatch,
		onEvent:  onEvent,
		logger:   logger,
		waiters:  make(map[uint64]chan reply),
		remotes:  make(map[uint32]time.Time),
	}
}

// Connect spawns (or re-spawns) the relay proxy, configured with url,
// and starts the reader goroutine. config is passed through to the
// proxy's "configure" method verbatim.
func (b *Bridge) Connect(proxyBinary, url string, config json.RawMessage) error {
	b.mu.Lock()
	if b.connected {
		b.mu.Unlock()
		return fmt.Errorf("relay: already connected")
	}
	b.mu.Unlock()

	cmd := exec.Command(proxyBinary, "--relay-url", url)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("relay: creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("relay: creating stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("relay: starting proxy: %w", err)
	}

	b.mu.Lock()
	b.url = url
	b.cmd = cmd
	b.stdin = stdin
	b.connected = true
	b.mu.Unlock()

	go b.readLoop(stdout)
	go b.reap()

	if config != nil {
		if _, err := b.call("configure", config, 5*time.Second); err != nil {
			b.logger.Warn("relay: initial configure failed", "error", err)
		}
	}
	if _, err := b.call("connect", nil, 10*time.Second); err != nil {
		return fmt.Errorf("relay: proxy connect failed: %w", err)
	}
	return nil
}

// reap waits for the proxy process to exit and marks the bridge
// disconnected, mirroring the launcher's background reap goroutine
// (avoids a zombie and logs the exit).
func (b *Bridge) reap() {
	b.mu.Lock()
	cmd := b.cmd
	b.mu.Unlock()
	if cmd == nil {
		return
	}
	err := cmd.Wait()

	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()

	if b.logger != nil {
		b.logger.Info("relay: proxy process exited", "error", err)
	}
	b.emit("disconnected", nil)
}

// Disconnect asks the proxy to shut down and kills it if it doesn't
// exit promptly.
func (b *Bridge) Disconnect() error {
	b.mu.Lock()
	cmd := b.cmd
	connected := b.connected
	b.mu.Unlock()
	if !connected || cmd == nil {
		return fmt.Errorf("relay: not connected")
	}

	_, _ = b.call("disconnect", nil, 2*time.Second)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		_ = cmd.Process.Kill()
		<-done
	}

	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	return nil
}

// Configure re-sends a "configure" call to the running proxy.
func (b *Bridge) Configure(config json.RawMessage) error {
	_, err := b.call("configure", config, 5*time.Second)
	return err
}

// Status reports the bridge's current connection state.
func (b *Bridge) Status() json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, _ := json.Marshal(Status{Connected: b.connected, URL: b.url, Remotes: len(b.remotes)})
	return data
}

// Remotes lists every remote agent the bridge has seen connect (and
// not yet seen disconnect).
func (b *Bridge) Remotes() json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RemoteInfo, 0, len(b.remotes))
	for id, at := range b.remotes {
		out = append(out, RemoteInfo{AgentID: id, ConnectedAt: at})
	}
	data, _ := json.Marshal(out)
	return data
}

// call sends a request and blocks for its correlated reply, honoring
// deadline (spec §4.13 "send_request_and_wait ... a per-call deadline
// and returns a timeout result").
func (b *Bridge) call(method string, params json.RawMessage, deadline time.Duration) (json.RawMessage, error) {
	id := b.nextRequestID.Add(1)
	waiter := make(chan reply, 1)

	b.mu.Lock()
	stdin := b.stdin
	b.waiters[id] = waiter
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.waiters, id)
		b.mu.Unlock()
	}()

	if stdin == nil {
		return nil, fmt.Errorf("relay: not connected")
	}

	line, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("relay: marshaling request: %w", err)
	}
	line = append(line, '\n')
	if _, err := stdin.Write(line); err != nil {
		return nil, fmt.Errorf("relay: writing request: %w", err)
	}

	select {
	case rep := <-waiter:
		if rep.Error != "" {
			return nil, fmt.Errorf("relay: proxy error: %s", rep.Error)
		}
		return rep.Result, nil
	case <-time.After(deadline):
		return nil, &TimeoutError{Method: method}
	}
}

// TimeoutError is returned by call when the proxy doesn't reply within
// the caller's deadline (spec §7 TIMEOUT).
type TimeoutError struct{ Method string }

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("relay: request %q timed out waiting for proxy reply", e.Method)
}

// readLoop parses newline-delimited JSON from the proxy's stdout,
// routing each line to a correlated reply waiter or to handleEvent.
// Runs until stdout closes (proxy exited).
func (b *Bridge) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var probe struct {
			ID    *uint64 `json:"id"`
			Event string  `json:"event"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			if b.logger != nil {
				b.logger.Warn("relay: malformed line from proxy", "error", err)
			}
			continue
		}

		if probe.ID != nil {
			var rep reply
			if err := json.Unmarshal(line, &rep); err == nil {
				b.mu.Lock()
				waiter, ok := b.waiters[rep.ID]
				b.mu.Unlock()
				if ok {
					waiter <- rep
				}
			}
			continue
		}

		var ev inboundEvent
		if err := json.Unmarshal(line, &ev); err == nil {
			b.handleEvent(ev)
		}
	}
}

// handleEvent processes one pushed event. "syscall" events are
// resolved locally (dispatch + send the response back); everything
// else is forwarded to onEvent for kernel/event.Bus to publish.
func (b *Bridge) handleEvent(ev inboundEvent) {
	switch ev.Event {
	case "agent_connected":
		var data struct {
			AgentID uint32 `json:"agent_id"`
		}
		if json.Unmarshal(ev.Data, &data) == nil {
			b.mu.Lock()
			b.remotes[data.AgentID] = time.Now()
			b.mu.Unlock()
		}
		b.emit(ev.Event, ev.Data)
	case "agent_disconnected":
		var data struct {
			AgentID uint32 `json:"agent_id"`
		}
		if json.Unmarshal(ev.Data, &data) == nil {
			b.mu.Lock()
			delete(b.remotes, data.AgentID)
			b.mu.Unlock()
		}
		b.emit(ev.Event, ev.Data)
	case "syscall":
		// Dispatched off the read loop: handleSyscallEvent's
		// send_response call blocks on a reply that only readLoop
		// itself can deliver, so running it inline here would
		// deadlock the loop against its own waiter.
		go b.handleSyscallEvent(ev.Data)
	default:
		b.emit(ev.Event, ev.Data)
	}
}

// handleSyscallEvent decodes a remote agent's base64-encoded syscall,
// dispatches it into the local router, and sends the response back to
// the proxy via send_response (spec §4.13 "the produced response is
// base64-encoded and sent back via the proxy").
func (b *Bridge) handleSyscallEvent(data json.RawMessage) {
	var sc syscallEventData
	if err := json.Unmarshal(data, &sc); err != nil {
		if b.logger != nil {
			b.logger.Warn("relay: malformed syscall event", "error", err)
		}
		return
	}

	payload, err := decodeBase64Payload(sc.Payload)
	if err != nil {
		if b.logger != nil {
			b.logger.Warn("relay: malformed syscall payload", "error", err)
		}
		return
	}

	response := b.dispatch(sc.AgentID, sc.Opcode, payload)
	encoded := encodeBase64Payload(response)

	params, _ := json.Marshal(map[string]any{
		"agent_id": sc.AgentID,
		"opcode":   sc.Opcode,
		"payload":  encoded,
	})
	if _, err := b.call("send_response", params, 5*time.Second); err != nil && b.logger != nil {
		b.logger.Warn("relay: send_response failed", "agent_id", sc.AgentID, "error", err)
	}
}

func (b *Bridge) emit(name string, data json.RawMessage) {
	if b.onEvent != nil {
		b.onEvent(name, data)
	}
}

// Shutdown tears down the bridge for process exit: best-effort
// "shutdown" call, then disconnect.
func (b *Bridge) Shutdown(ctx context.Context) error {
	_, _ = b.call("shutdown", nil, 2*time.Second)
	return b.Disconnect()
}
