// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent owns the one piece of spec §4.12 that
// kernel/supervisor's restart-policy bookkeeping deliberately doesn't:
// the actual agent process — spawning it, signaling it to pause or
// resume, killing it, and reaping its exit so the supervisor can
// decide whether to restart it.
//
// Grounded on cmd/bureau-agent-claude/driver.go's Start (the
// StdinPipe/StdoutPipe/Start shape for a supervised child process) and
// cvsloane-agent-commander/agents/agentd/internal/tmux/pty_bridge.go's
// pty.Start usage for attaching a child to a real terminal. Sandbox
// setup itself is a black box (spec §1): a sandboxed agent's Command
// already names the sandboxing wrapper binary (e.g. a setns/cgroup
// launcher invoked externally); this package only ever runs
// exec.Command against whatever Command names, optionally attaching a
// PTY for non-sandboxed dev-mode agents (SPEC_FULL.md's wiring for
// github.com/creack/pty).
package agent
