// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"testing"
	"time"

	"github.com/clove-kernel/clove/kernel/event"
	"github.com/clove-kernel/clove/lib/clock"
)

func testConfig() RestartConfig {
	return RestartConfig{
		Policy:            Always,
		MaxRestarts:       100,
		RestartWindowSec:  3600,
		BackoffInitialMs:  100,
		BackoffMaxMs:      1000,
		BackoffMultiplier: 2.0,
	}
}

// TestBackoffSequence implements scenario E4 from spec.md §8: delays
// for failures 1..5 are 100, 200, 400, 800, 1000.
func TestBackoffSequence(t *testing.T) {
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1000 * time.Millisecond,
	}
	config := testConfig()
	for n := 1; n <= 5; n++ {
		got := backoffDelay(config, n)
		if got != want[n-1] {
			t.Errorf("backoffDelay(n=%d) = %v, want %v", n, got, want[n-1])
		}
	}
}

// TestEscalationAfterCapExceeded implements property 8 from spec.md
// §8: given policy=ALWAYS, max_restarts=k, window=W, if an agent
// fails k+1 times within W, the supervisor emits exactly one
// AGENT_ESCALATED and schedules no further restarts until the window
// elapses.
func TestEscalationAfterCapExceeded(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	bus := event.New(fake)
	bus.Subscribe(0, []event.KernelEventType{event.AgentEscalated, event.AgentRestarting})

	launched := 0
	sup := New(fake, bus, func(agentID uint32) error { launched++; return nil })

	const k = 3
	config := testConfig()
	config.MaxRestarts = k
	config.RestartWindowSec = 3600
	sup.Configure(1, config)

	for i := 0; i < k+1; i++ {
		sup.ReportExit(1, 1)
	}

	escalations := 0
	restarting := 0
	for _, e := range bus.Poll(0, 100) {
		switch e.Type {
		case event.AgentEscalated:
			escalations++
		case event.AgentRestarting:
			restarting++
		}
	}

	if escalations != 1 {
		t.Errorf("escalations = %d, want exactly 1", escalations)
	}
	if restarting != k {
		t.Errorf("AGENT_RESTARTING emitted %d times, want %d (cap reached on the %dth failure)", restarting, k, k+1)
	}

	// A further failure within the same window stays escalated —
	// no additional AGENT_ESCALATED.
	sup.ReportExit(1, 1)
	again := bus.Poll(0, 100)
	for _, e := range again {
		if e.Type == event.AgentEscalated {
			t.Error("AGENT_ESCALATED emitted more than once within the same window")
		}
	}
}

func TestNeverPolicyDoesNotRestart(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	bus := event.New(fake)
	bus.Subscribe(0, []event.KernelEventType{event.AgentRestarting})
	sup := New(fake, bus, func(uint32) error { return nil })

	config := testConfig()
	config.Policy = Never
	sup.Configure(1, config)
	sup.ReportExit(1, 1)

	if got := bus.Poll(0, 10); len(got) != 0 {
		t.Errorf("NEVER policy scheduled a restart: %v", got)
	}
}

func TestOnFailurePolicyIgnoresCleanExit(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	bus := event.New(fake)
	bus.Subscribe(0, []event.KernelEventType{event.AgentRestarting})
	sup := New(fake, bus, func(uint32) error { return nil })

	config := testConfig()
	config.Policy = OnFailure
	sup.Configure(1, config)
	sup.ReportExit(1, 0) // exit code 0 = clean exit

	if got := bus.Poll(0, 10); len(got) != 0 {
		t.Errorf("ON_FAILURE policy restarted after a clean exit: %v", got)
	}
}

func TestTickLaunchesScheduledRestart(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	bus := event.New(fake)
	launched := make(chan uint32, 1)
	sup := New(fake, bus, func(agentID uint32) error { launched <- agentID; return nil })

	sup.Configure(1, testConfig())
	sup.ReportExit(1, 1) // schedules a restart 100ms out

	sup.Tick() // too early
	select {
	case <-launched:
		t.Fatal("Tick launched before scheduled time")
	default:
	}

	fake.Advance(200 * time.Millisecond)
	sup.Tick()
	select {
	case got := <-launched:
		if got != 1 {
			t.Errorf("launched agent %d, want 1", got)
		}
	default:
		t.Fatal("Tick did not launch after scheduled time elapsed")
	}
}

func TestWindowElapseResetsConsecutiveFailures(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	bus := event.New(fake)
	sup := New(fake, bus, func(uint32) error { return nil })

	config := testConfig()
	config.RestartWindowSec = 1
	sup.Configure(1, config)

	sup.ReportExit(1, 1)
	st := sup.state[1]
	if st.consecutiveFailures != 1 {
		t.Fatalf("consecutive_failures = %d, want 1", st.consecutiveFailures)
	}

	fake.Advance(2 * time.Second)
	sup.ReportExit(1, 1)
	if st.consecutiveFailures != 1 {
		t.Errorf("consecutive_failures after window elapsed = %d, want reset to 1 (not accumulated to 2)", st.consecutiveFailures)
	}
}
