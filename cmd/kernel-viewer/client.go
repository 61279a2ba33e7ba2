// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/clove-kernel/clove/lib/frame"
	"github.com/clove-kernel/clove/lib/opcode"
)

// client is a minimal, single-connection kernel IPC client: one frame
// out, one frame back, same as any other agent talking to kerneld's
// reactor (spec §4.1, §4.2). The viewer never overlaps requests on its
// connection, so a plain mutex around one net.Conn is enough — no
// request ID correlation needed, unlike kernel/relay.Bridge which
// multiplexes many in-flight calls over one pipe.
type client struct {
	mu      sync.Mutex
	conn    net.Conn
	agentID uint32
}

// dial connects to the kernel's Unix socket and sends an initial
// REGISTER to learn the agent id the kernel assigns this connection
// (spec §4.1 "a client's first frame... may declare agent_id 0 to
// request a fresh id").
func dial(socketPath, name string) (*client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", socketPath, err)
	}

	c := &client{conn: conn}

	req, _ := json.Marshal(struct {
		Name string `json:"name"`
	}{Name: name})

	resp, err := c.call(opcode.REGISTER, req)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = resp
	return c, nil
}

// call writes one frame and reads the matching response, updating
// c.agentID from whatever the kernel echoes back (it assigns the real
// id on the very first frame).
func (c *client) call(op opcode.Opcode, payload json.RawMessage) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := frame.WriteFrame(c.conn, frame.Frame{Opcode: byte(op), AgentID: c.agentID, Payload: payload}); err != nil {
		return nil, err
	}
	resp, err := frame.ReadFrame(c.conn)
	if err != nil {
		return nil, err
	}
	c.agentID = resp.AgentID
	return resp.Payload, nil
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
