// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// writer abstracts the two transports a Bridge can speak the same
// newline-delimited JSON protocol over: the proxy subprocess's stdin
// pipe, or a WebSocket connection to an already-running proxy (spec
// §4.13's "optional HTTP-fronted relay mode", SPEC_FULL.md's domain-
// stack wiring for github.com/gorilla/websocket). Both implementations
// are safe to call from Bridge.call under b.mu.
type writer interface {
	Write(p []byte) (int, error)
}

type wsWriter struct{ conn *websocket.Conn }

func (w wsWriter) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ConnectWS dials a relay proxy already running behind an HTTP(S)
// endpoint instead of spawning one as a child process. The same
// request/reply/event vocabulary travels over the socket as
// newline-free JSON text frames, one request or event per frame
// (grounded on
// cvsloane-agent-commander/agents/agentd/internal/ws/client.go's
// dial-then-reader-goroutine shape).
func (b *Bridge) ConnectWS(url string, header http.Header, config json.RawMessage) error {
	b.mu.Lock()
	if b.connected {
		b.mu.Unlock()
		return fmt.Errorf("relay: already connected")
	}
	b.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return fmt.Errorf("relay: dialing proxy: %w", err)
	}

	b.mu.Lock()
	b.url = url
	b.wsConn = conn
	b.stdin = wsWriteCloser{wsWriter{conn}}
	b.connected = true
	b.mu.Unlock()

	go b.wsReadLoop(conn)

	if config != nil {
		if _, err := b.call("configure", config, 5*time.Second); err != nil {
			b.logger.Warn("relay: initial configure over websocket failed", "error", err)
		}
	}
	if _, err := b.call("connect", nil, 10*time.Second); err != nil {
		return fmt.Errorf("relay: proxy connect over websocket failed: %w", err)
	}
	return nil
}

// wsWriteCloser adapts wsWriter to io.WriteCloser so it can be stored
// in Bridge.stdin alongside the subprocess-pipe transport; Close tears
// down the underlying WebSocket connection.
type wsWriteCloser struct{ wsWriter }

func (w wsWriteCloser) Close() error { return w.conn.Close() }

// wsReadLoop parses one JSON value per WebSocket text frame — the
// framing the transport already gives for free, unlike the
// subprocess-pipe transport which needs bufio.Scanner's newline
// delimiting.
func (b *Bridge) wsReadLoop(conn *websocket.Conn) {
	defer func() {
		b.mu.Lock()
		b.connected = false
		b.mu.Unlock()
		b.emit("disconnected", nil)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if b.logger != nil {
				b.logger.Info("relay: websocket read error", "error", err)
			}
			return
		}

		var probe struct {
			ID    *uint64 `json:"id"`
			Event string  `json:"event"`
		}
		if err := json.Unmarshal(message, &probe); err != nil {
			continue
		}

		if probe.ID != nil {
			var rep reply
			if err := json.Unmarshal(message, &rep); err == nil {
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
		if err := json.Unmarshal(message, &ev); err == nil {
			b.handleEvent(ev)
		}
	}
}
