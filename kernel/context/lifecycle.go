// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/clove-kernel/clove/kernel/agent"
	"github.com/clove-kernel/clove/kernel/audit"
	"github.com/clove-kernel/clove/kernel/event"
	"github.com/clove-kernel/clove/kernel/supervisor"
	"github.com/clove-kernel/clove/lib/opcode"
)

// spawnRequest is SPAWN's request body.
type spawnRequest struct {
	Name      string              `json:"name,omitempty"`
	Command   []string            `json:"command"`
	Env       []string            `json:"env,omitempty"`
	WorkDir   string              `json:"work_dir,omitempty"`
	Sandboxed *bool               `json:"sandboxed,omitempty"`
	Restart   supervisor.RestartConfig `json:"restart"`
}

type spawnResponse struct {
	opcode.Response
	AgentID uint32 `json:"agent_id"`
}

// agentIDEnv is the environment variable a SPAWN'd process reads to
// present the id the kernel pre-allocated for it when it opens its own
// connection to the kernel socket (see Context.OnConnect).
const agentIDEnv = "CLOVE_AGENT_ID"

func (c *Context) registerLifecycleHandlers() {
	c.Router.Register(opcode.THINK, func(agentID uint32, payload json.RawMessage) json.RawMessage {
		// Kernel-hosted inference is never available (spec §1, §9 Open
		// Questions): THINK always delegates elsewhere.
		return encode(opcode.Response{Success: false, Kind: opcode.ErrUnavailable,
			Error: "kernel-hosted inference is not available; delegate to an external LLM service"})
	})

	c.Router.Register(opcode.SPAWN, c.handleSpawn)
	c.Router.Register(opcode.KILL, c.handleKill)
	c.Router.Register(opcode.LIST, c.handleList)
	c.Router.Register(opcode.EXEC, c.handleExec)
	c.Router.Register(opcode.PAUSE, c.handlePause)
	c.Router.Register(opcode.RESUME, c.handleResume)
}

func (c *Context) handleSpawn(callerID uint32, payload json.RawMessage) json.RawMessage {
	perms := c.Permissions.GetOrCreate(callerID)
	if !perms.Capabilities.CanSpawn {
		return fail(opcode.ErrPermissionDenied, "caller lacks can_spawn")
	}

	var req spawnRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	if len(req.Command) == 0 {
		return fail(opcode.ErrInvalidRequest, "command must be non-empty")
	}

	newID := c.nextAgentID.Add(1)
	sandboxed := c.Config.EnableSandboxing
	if req.Sandboxed != nil {
		sandboxed = *req.Sandboxed
	}

	spec := agent.Spec{
		AgentID:   newID,
		Name:      req.Name,
		Command:   req.Command,
		Env:       append(req.Env, fmt.Sprintf("%s=%d", agentIDEnv, newID)),
		WorkDir:   req.WorkDir,
		Sandboxed: sandboxed,
	}

	c.specMu.Lock()
	c.specs[newID] = spec
	c.pending[newID] = struct{}{}
	c.specMu.Unlock()

	c.Supervisor.Configure(newID, req.Restart)
	c.Mailbox.EnsureAgent(newID)
	if req.Name != "" {
		_ = c.Mailbox.Register(newID, req.Name)
	}
	c.Permissions.GetOrCreate(newID)

	if err := c.Agents.Spawn(spec); err != nil {
		c.specMu.Lock()
		delete(c.pending, newID)
		c.specMu.Unlock()
		c.Audit.Log(audit.CategoryLifecycle, callerID, "SPAWN", mustJSON(map[string]any{"agent_id": newID, "error": err.Error()}), false)
		return fail(opcode.ErrIOFailure, err.Error())
	}

	c.Events.Emit(event.AgentSpawned, mustJSON(map[string]any{"agent_id": newID, "name": req.Name}), callerID)
	c.Audit.Log(audit.CategoryLifecycle, callerID, "SPAWN", mustJSON(map[string]any{"agent_id": newID}), true)
	c.publishCounts()

	return encode(spawnResponse{Response: opcode.OK(), AgentID: newID})
}

type killRequest struct {
	AgentID uint32 `json:"agent_id"`
	Force   bool   `json:"force,omitempty"`
}

func (c *Context) handleKill(callerID uint32, payload json.RawMessage) json.RawMessage {
	perms := c.Permissions.GetOrCreate(callerID)
	var req killRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	if req.AgentID != callerID && !perms.Capabilities.CanSpawn {
		return fail(opcode.ErrPermissionDenied, "caller lacks can_spawn")
	}

	if err := c.Agents.Kill(req.AgentID, req.Force); err != nil {
		return fail(opcode.ErrNotFound, err.Error())
	}
	c.Audit.Log(audit.CategoryLifecycle, callerID, "KILL", mustJSON(map[string]any{"agent_id": req.AgentID, "force": req.Force}), true)
	return encode(opcode.OK())
}

type pauseRequest struct {
	AgentID uint32 `json:"agent_id"`
}

// handlePause forwards the PAUSED signal to the supervised process
// (spec §4.12 "signals the supervisor forwards while updating the
// state label") and publishes AGENT_PAUSED so a subscriber can track
// the transition.
func (c *Context) handlePause(callerID uint32, payload json.RawMessage) json.RawMessage {
	perms := c.Permissions.GetOrCreate(callerID)
	var req pauseRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	if req.AgentID != callerID && !perms.Capabilities.CanSpawn {
		return fail(opcode.ErrPermissionDenied, "caller lacks can_spawn")
	}

	if err := c.Agents.Pause(req.AgentID); err != nil {
		switch err.(type) {
		case *agent.ErrUnknownAgent:
			return fail(opcode.ErrNotFound, err.Error())
		default:
			return fail(opcode.ErrConflict, err.Error())
		}
	}
	c.Events.Emit(event.AgentPaused, mustJSON(map[string]any{"agent_id": req.AgentID}), callerID)
	c.Audit.Log(audit.CategoryLifecycle, callerID, "PAUSE", mustJSON(map[string]any{"agent_id": req.AgentID}), true)
	return encode(opcode.OK())
}

func (c *Context) handleResume(callerID uint32, payload json.RawMessage) json.RawMessage {
	perms := c.Permissions.GetOrCreate(callerID)
	var req pauseRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	if req.AgentID != callerID && !perms.Capabilities.CanSpawn {
		return fail(opcode.ErrPermissionDenied, "caller lacks can_spawn")
	}

	if err := c.Agents.Resume(req.AgentID); err != nil {
		switch err.(type) {
		case *agent.ErrUnknownAgent:
			return fail(opcode.ErrNotFound, err.Error())
		default:
			return fail(opcode.ErrConflict, err.Error())
		}
	}
	c.Events.Emit(event.AgentResumed, mustJSON(map[string]any{"agent_id": req.AgentID}), callerID)
	c.Audit.Log(audit.CategoryLifecycle, callerID, "RESUME", mustJSON(map[string]any{"agent_id": req.AgentID}), true)
	return encode(opcode.OK())
}

type listedAgent struct {
	AgentID uint32 `json:"agent_id"`
	Name    string `json:"name,omitempty"`
	State   string `json:"state,omitempty"`
}

type listResponse struct {
	opcode.Response
	Agents []listedAgent `json:"agents"`
}

func (c *Context) handleList(callerID uint32, payload json.RawMessage) json.RawMessage {
	var out []listedAgent
	for _, id := range c.Mailbox.Known() {
		name, _ := c.Mailbox.Name(id)
		entry := listedAgent{AgentID: id, Name: name}
		if state, ok := c.Agents.State(id); ok {
			entry.State = string(state)
		}
		out = append(out, entry)
	}
	return encode(listResponse{Response: opcode.OK(), Agents: out})
}

type execRequest struct {
	Command   []string `json:"command"`
	TimeoutMs int       `json:"timeout_ms,omitempty"`
}

type execResult struct {
	opcode.Response
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// handleExec runs an arbitrary command to completion, which can block
// arbitrarily long — so it is submitted to the async manager and the
// caller polls for the result (spec §5 "Suspension points").
func (c *Context) handleExec(callerID uint32, payload json.RawMessage) json.RawMessage {
	perms := c.Permissions.GetOrCreate(callerID)
	var req execRequest
	if body, ok := decode(payload, &req); !ok {
		return body
	}
	if len(req.Command) == 0 {
		return fail(opcode.ErrInvalidRequest, "command must be non-empty")
	}
	if !perms.Capabilities.CanSpawn {
		return fail(opcode.ErrPermissionDenied, "caller lacks can_spawn")
	}

	requestID := c.Async.NextRequestID()
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	err := c.Async.Submit(callerID, requestID, opcode.EXEC, func() json.RawMessage {
		return c.runExec(req.Command, timeout)
	})
	if err != nil {
		return fail(opcode.ErrUnavailable, err.Error())
	}
	return encode(map[string]any{"success": true, "submitted": true, "request_id": requestID})
}

func (c *Context) runExec(command []string, timeout time.Duration) json.RawMessage {
	cmd := exec.Command(command[0], command[1:]...)
	done := make(chan error, 1)
	var stdout, stderr []byte
	go func() {
		var err error
		stdout, err = cmd.Output()
		done <- err
	}()

	select {
	case err := <-done:
		exitCode := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
				stderr = exitErr.Stderr
			} else {
				return encode(execResult{Response: opcode.Fail(opcode.ErrIOFailure, err.Error())})
			}
		}
		return encode(execResult{Response: opcode.OK(), ExitCode: exitCode, Stdout: string(stdout), Stderr: string(stderr)})
	case <-time.After(timeout):
		_ = cmd.Process.Kill()
		return encode(execResult{Response: opcode.Fail(opcode.ErrTimeout, "command exceeded timeout")})
	}
}
