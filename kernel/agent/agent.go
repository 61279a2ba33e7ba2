// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// State is the closed enumeration of agent process lifecycle states
// (spec §4.12: "CREATED → STARTING → RUNNING → (PAUSED ↔ RUNNING) →
// STOPPING → STOPPED | FAILED").
type State string

const (
	Created  State = "CREATED"
	Starting State = "STARTING"
	Running  State = "RUNNING"
	Paused   State = "PAUSED"
	Stopping State = "STOPPING"
	Stopped  State = "STOPPED"
	Failed   State = "FAILED"
)

// Spec describes how to launch one agent's process.
type Spec struct {
	AgentID uint32
	Name    string
	// Command is argv; Command[0] is resolved via exec.LookPath
	// semantics. For a sandboxed agent this names the external
	// sandbox-setup wrapper (spec §1, out of scope here) rather than
	// the agent binary directly.
	Command []string
	Env     []string
	WorkDir string
	// Sandboxed selects whether the process is attached to a PTY
	// (false, "dev mode") or run headless with inherited stdio
	// (true — the normal case, since a sandboxed agent's terminal, if
	// any, is the sandbox wrapper's concern).
	Sandboxed bool
}

// record is one tracked process. Table.Reap reads done; a background
// goroutine (wait) started in Spawn populates exitCode and closes done
// exactly once.
type record struct {
	mu      sync.Mutex
	agentID uint32
	name    string
	state   State
	cmd     *exec.Cmd
	ptmx    *os.File

	done      chan struct{}
	exitCode  int
	collected bool // Reap has already reported this exit
}

// ReapResult is one process's exit as observed by Reap.
type ReapResult struct {
	AgentID  uint32
	ExitCode int
}

// Table tracks every agent's process. Safe for concurrent use; owns
// exactly one lock guarding the id→record map (spec §5 "leaf locks") —
// each record's own mutex additionally serializes state transitions
// for that one agent.
type Table struct {
	mu      sync.Mutex
	records map[uint32]*record
}

// New creates an empty Table.
func New() *Table {
	return &Table{records: make(map[uint32]*record)}
}

// ErrUnknownAgent is returned by Pause/Resume/Kill for an agent Table
// has no record of.
type ErrUnknownAgent struct{ AgentID uint32 }

func (e *ErrUnknownAgent) Error() string {
	return fmt.Sprintf("agent: no process tracked for agent %d", e.AgentID)
}

// ErrWrongState is returned when a transition is requested from a
// state that doesn't permit it (e.g. Pause on a STOPPED agent).
type ErrWrongState struct {
	AgentID uint32
	State   State
}

func (e *ErrWrongState) Error() string {
	return fmt.Sprintf("agent: agent %d is %s, operation not valid from this state", e.AgentID, e.State)
}

// Spawn starts spec's process, tracking it under spec.AgentID. Returns
// once the process has started (state RUNNING) or failed to start
// (state FAILED, error returned).
func (t *Table) Spawn(spec Spec) error {
	rec := &record{agentID: spec.AgentID, name: spec.Name, state: Starting, done: make(chan struct{})}

	t.mu.Lock()
	t.records[spec.AgentID] = rec
	t.mu.Unlock()

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkDir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	var ptmx *os.File
	var err error
	if spec.Sandboxed {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		err = cmd.Start()
	} else {
		ptmx, err = pty.Start(cmd)
	}
	if err != nil {
		rec.mu.Lock()
		rec.state = Failed
		rec.mu.Unlock()
		return fmt.Errorf("agent: starting agent %d: %w", spec.AgentID, err)
	}

	rec.mu.Lock()
	rec.cmd = cmd
	rec.ptmx = ptmx
	rec.state = Running
	rec.mu.Unlock()

	go rec.wait()
	return nil
}

// wait blocks until the process exits, records its exit code, and
// signals done exactly once. Runs for the lifetime of the process, in
// its own goroutine, so Table.Reap never blocks (spec §4.12 "Any agent
// whose underlying process has exited ... is marked dead").
func (r *record) wait() {
	err := r.cmd.Wait()
	if r.ptmx != nil {
		r.ptmx.Close()
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	r.mu.Lock()
	r.exitCode = exitCode
	if r.state != Stopping {
		// Not an operator-initiated stop — the process died on its
		// own, which is a FAILED transition unless it exited cleanly.
		if exitCode == 0 {
			r.state = Stopped
		} else {
			r.state = Failed
		}
	} else {
		r.state = Stopped
	}
	r.mu.Unlock()
	close(r.done)
}

// Pause sends SIGSTOP to agentID's process (spec §4.12 "signals to the
// hosting process").
func (t *Table) Pause(agentID uint32) error {
	rec, ok := t.get(agentID)
	if !ok {
		return &ErrUnknownAgent{AgentID: agentID}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.state != Running {
		return &ErrWrongState{AgentID: agentID, State: rec.state}
	}
	if err := unix.Kill(rec.cmd.Process.Pid, unix.SIGSTOP); err != nil {
		return fmt.Errorf("agent: pausing agent %d: %w", agentID, err)
	}
	rec.state = Paused
	return nil
}

// Resume sends SIGCONT to agentID's process.
func (t *Table) Resume(agentID uint32) error {
	rec, ok := t.get(agentID)
	if !ok {
		return &ErrUnknownAgent{AgentID: agentID}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.state != Paused {
		return &ErrWrongState{AgentID: agentID, State: rec.state}
	}
	if err := unix.Kill(rec.cmd.Process.Pid, unix.SIGCONT); err != nil {
		return fmt.Errorf("agent: resuming agent %d: %w", agentID, err)
	}
	rec.state = Running
	return nil
}

// Kill sends SIGTERM (or SIGKILL if force) to agentID's process and
// marks it STOPPING; the wait goroutine transitions it to STOPPED once
// the process actually exits.
func (t *Table) Kill(agentID uint32, force bool) error {
	rec, ok := t.get(agentID)
	if !ok {
		return &ErrUnknownAgent{AgentID: agentID}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.state == Stopped || rec.state == Failed {
		return &ErrWrongState{AgentID: agentID, State: rec.state}
	}

	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}
	if err := unix.Kill(rec.cmd.Process.Pid, sig); err != nil {
		return fmt.Errorf("agent: killing agent %d: %w", agentID, err)
	}
	rec.state = Stopping
	return nil
}

// State returns agentID's current state.
func (t *Table) State(agentID uint32) (State, bool) {
	rec, ok := t.get(agentID)
	if !ok {
		return "", false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state, true
}

// Remove drops agentID's tracking record entirely.
func (t *Table) Remove(agentID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, agentID)
}

func (t *Table) get(agentID uint32) (*record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[agentID]
	return rec, ok
}

// Reap collects every process that has exited since the last Reap
// call and hasn't yet been reported, so a caller (kernel/supervisor's
// ReportExit) sees each exit exactly once (spec §4.12 step 1 "Reap").
func (t *Table) Reap() []ReapResult {
	t.mu.Lock()
	recs := make([]*record, 0, len(t.records))
	for _, rec := range t.records {
		recs = append(recs, rec)
	}
	t.mu.Unlock()

	var out []ReapResult
	for _, rec := range recs {
		select {
		case <-rec.done:
		default:
			continue
		}

		rec.mu.Lock()
		if !rec.collected {
			rec.collected = true
			out = append(out, ReapResult{AgentID: rec.agentID, ExitCode: rec.exitCode})
		}
		rec.mu.Unlock()
	}
	return out
}
