// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"testing"
	"time"
)

func waitForReap(t *testing.T, tbl *Table, agentID uint32) ReapResult {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, r := range tbl.Reap() {
			if r.AgentID == agentID {
				return r
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("agent %d never reaped", agentID)
	return ReapResult{}
}

func TestSpawnAndReapCleanExit(t *testing.T) {
	tbl := New()
	err := tbl.Spawn(Spec{AgentID: 1, Command: []string{"/bin/sh", "-c", "exit 0"}, Sandboxed: true})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	result := waitForReap(t, tbl, 1)
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", result.ExitCode)
	}

	state, ok := tbl.State(1)
	if !ok || state != Stopped {
		t.Errorf("state = %v (ok=%v), want STOPPED", state, ok)
	}
}

func TestSpawnAndReapFailureExit(t *testing.T) {
	tbl := New()
	if err := tbl.Spawn(Spec{AgentID: 2, Command: []string{"/bin/sh", "-c", "exit 7"}, Sandboxed: true}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	result := waitForReap(t, tbl, 2)
	if result.ExitCode != 7 {
		t.Errorf("exit code = %d, want 7", result.ExitCode)
	}

	state, _ := tbl.State(2)
	if state != Failed {
		t.Errorf("state = %v, want FAILED", state)
	}
}

func TestReapDoesNotReportTwice(t *testing.T) {
	tbl := New()
	if err := tbl.Spawn(Spec{AgentID: 3, Command: []string{"/bin/sh", "-c", "exit 0"}, Sandboxed: true}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	waitForReap(t, tbl, 3)

	for _, r := range tbl.Reap() {
		if r.AgentID == 3 {
			t.Fatal("Reap reported agent 3 a second time")
		}
	}
}

func TestKillMarksStoppingThenStopped(t *testing.T) {
	tbl := New()
	if err := tbl.Spawn(Spec{AgentID: 4, Command: []string{"/bin/sh", "-c", "sleep 5"}, Sandboxed: true}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if err := tbl.Kill(4, false); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if state, _ := tbl.State(4); state != Stopping {
		t.Errorf("state immediately after Kill = %v, want STOPPING", state)
	}

	waitForReap(t, tbl, 4)
	if state, _ := tbl.State(4); state != Stopped {
		t.Errorf("state after exit = %v, want STOPPED", state)
	}
}

func TestPauseResumeUnknownAgent(t *testing.T) {
	tbl := New()
	if err := tbl.Pause(99); err == nil {
		t.Error("Pause on unknown agent should error")
	}
	if err := tbl.Resume(99); err == nil {
		t.Error("Resume on unknown agent should error")
	}
}
