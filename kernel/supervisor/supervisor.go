// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/clove-kernel/clove/kernel/event"
	"github.com/clove-kernel/clove/lib/clock"
)

// Policy is the closed enumeration of restart policies (spec §4.12).
type Policy string

const (
	Never     Policy = "NEVER"
	Always    Policy = "ALWAYS"
	OnFailure Policy = "ON_FAILURE"
)

// RestartConfig is an agent's declared restart policy (spec §4.12).
type RestartConfig struct {
	Policy            Policy  `json:"policy"`
	MaxRestarts       int     `json:"max_restarts"`
	RestartWindowSec  float64 `json:"restart_window_sec"`
	BackoffInitialMs  float64 `json:"backoff_initial_ms"`
	BackoffMaxMs      float64 `json:"backoff_max_ms"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
}

// restartState is the per-agent bookkeeping the supervisor maintains
// (spec §3 "Restart state").
type restartState struct {
	config              RestartConfig
	restartCount        int
	consecutiveFailures int
	windowStart         time.Time
	escalated           bool
	scheduledAt         time.Time
	pending             bool
}

// LaunchFunc starts (or restarts) the process backing agentID.
// Returning an error means the launch attempt itself failed; the
// supervisor counts that as a failure toward the restart cap.
type LaunchFunc func(agentID uint32) error

// Supervisor is the kernel's agent lifecycle subsystem. All methods
// are safe for concurrent use; Supervisor owns exactly one lock
// (spec §5 "leaf locks").
type Supervisor struct {
	clock  clock.Clock
	bus    *event.Bus
	launch LaunchFunc

	mu    sync.Mutex
	state map[uint32]*restartState
}

// New creates an empty Supervisor. bus receives AGENT_RESTARTING and
// AGENT_ESCALATED notifications; launch is called to start a pending
// restart.
func New(clk clock.Clock, bus *event.Bus, launch LaunchFunc) *Supervisor {
	return &Supervisor{clock: clk, bus: bus, launch: launch, state: make(map[uint32]*restartState)}
}

// Configure declares or replaces agentID's restart policy, resetting
// its restart bookkeeping.
func (s *Supervisor) Configure(agentID uint32, config RestartConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[agentID] = &restartState{config: config, windowStart: s.clock.Now()}
}

// Remove drops agentID's restart bookkeeping entirely.
func (s *Supervisor) Remove(agentID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, agentID)
}

// backoffDelay computes the nth scheduled delay (spec §8 property 9):
// min(backoff_initial * multiplier^(n-1), backoff_max), where n is
// consecutiveFailures after incrementing for this failure.
func backoffDelay(config RestartConfig, consecutiveFailures int) time.Duration {
	delayMs := config.BackoffInitialMs * math.Pow(config.BackoffMultiplier, float64(consecutiveFailures-1))
	if delayMs > config.BackoffMaxMs {
		delayMs = config.BackoffMaxMs
	}
	return time.Duration(delayMs) * time.Millisecond
}

// ReportExit notifies the supervisor that agentID's process exited
// with exitCode. This runs the decide/limit/schedule steps of the
// tick (spec §4.12 steps 2-4); Launch happens on a later Tick.
func (s *Supervisor) ReportExit(agentID uint32, exitCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state[agentID]
	if !ok {
		return
	}

	// Decide: policy gates restart by exit code.
	shouldRestart := false
	switch st.config.Policy {
	case Always:
		shouldRestart = true
	case OnFailure:
		shouldRestart = exitCode != 0
	case Never:
		shouldRestart = false
	}
	if !shouldRestart {
		return
	}

	now := s.clock.Now()
	windowDuration := time.Duration(st.config.RestartWindowSec * float64(time.Second))
	if windowDuration > 0 && now.Sub(st.windowStart) >= windowDuration {
		st.windowStart = now
		st.restartCount = 0
		st.consecutiveFailures = 0
		st.escalated = false
	}

	// Limit: stop attempting once the cap is reached within the window.
	if st.restartCount >= st.config.MaxRestarts {
		if !st.escalated {
			st.escalated = true
			s.emit(event.AgentEscalated, agentID, map[string]any{
				"agent_id":      agentID,
				"restart_count": st.restartCount,
			})
		}
		return
	}

	// Schedule.
	st.consecutiveFailures++
	st.restartCount++
	delay := backoffDelay(st.config, st.consecutiveFailures)
	st.scheduledAt = now.Add(delay)
	st.pending = true

	s.emit(event.AgentRestarting, agentID, map[string]any{
		"agent_id": agentID,
		"delay_ms": delay.Milliseconds(),
		"attempt":  st.consecutiveFailures,
	})
}

// Tick runs the launch step: any pending restart whose scheduled time
// has arrived is started (spec §4.12 step 5). Call periodically from
// the reactor's timer tick.
func (s *Supervisor) Tick() {
	now := s.clock.Now()

	var toLaunch []uint32
	s.mu.Lock()
	for agentID, st := range s.state {
		if st.pending && !st.scheduledAt.After(now) {
			st.pending = false
			toLaunch = append(toLaunch, agentID)
		}
	}
	s.mu.Unlock()

	for _, agentID := range toLaunch {
		if err := s.launch(agentID); err != nil {
			// A failed launch counts as another failure, same as a
			// process exit would — consecutive_failures is NOT reset
			// by the attempt itself (spec §4.12 step 5).
			s.ReportExit(agentID, 1)
			continue
		}
		s.emit(event.AgentSpawned, agentID, map[string]any{"agent_id": agentID})
	}
}

// emit publishes a supervisor lifecycle event. event.Bus holds its
// own independent lock (spec §5 "leaf locks"), so this may be called
// whether or not s.mu is held.
func (s *Supervisor) emit(eventType event.KernelEventType, agentID uint32, data map[string]any) {
	payload, _ := json.Marshal(data)
	s.bus.Emit(eventType, payload, agentID)
}
