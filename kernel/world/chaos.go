// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/clove-kernel/clove/lib/pattern"
)

// ChaosRuleType is the closed enumeration of chaos rule kinds (spec
// §4.10).
type ChaosRuleType string

const (
	RuleFileReadFail   ChaosRuleType = "file_read_fail"
	RuleFileWriteFail  ChaosRuleType = "file_write_fail"
	RuleNetworkTimeout ChaosRuleType = "network_timeout"
	RuleNetworkFail    ChaosRuleType = "network_fail"
)

// ActiveEvent is the closed enumeration of events inject_event may
// set (spec §4.10).
type ActiveEvent string

const (
	EventDiskFail         ActiveEvent = "disk_fail"
	EventDiskFull         ActiveEvent = "disk_full"
	EventNetworkPartition ActiveEvent = "network_partition"
	EventSlowIO           ActiveEvent = "slow_io"
)

// ChaosRule is one typed, pattern-scoped fault rule (spec §4.10).
type ChaosRule struct {
	Type        ChaosRuleType `json:"type"`
	Pattern     string        `json:"pattern"`
	Probability float64       `json:"probability"`
}

// ChaosConfig configures a ChaosEngine (spec §4.10).
type ChaosConfig struct {
	Enabled     bool        `json:"enabled"`
	FailureRate float64     `json:"failure_rate"`
	LatencyMin  int         `json:"latency_min_ms"`
	LatencyMax  int         `json:"latency_max_ms"`
	Rules       []ChaosRule `json:"rules"`
}

// ChaosEngine is a pseudorandom fault injector scoped to one World
// (spec §4.10). Safe for concurrent use; owns exactly one lock.
type ChaosEngine struct {
	mu sync.Mutex
	// rng is per-engine and seedable for reproducibility, matching
	// original_source/src/kernel/world_engine.hpp's ChaosEngine.
	rng *rand.Rand

	enabled     bool
	failureRate float64
	latencyMin  time.Duration
	latencyMax  time.Duration
	rules       []ChaosRule

	activeEvents map[ActiveEvent]struct{}
	eventParams  map[ActiveEvent]json.RawMessage

	failuresInjected uint64
}

// NewChaosEngine creates a disabled ChaosEngine seeded from seed.
func NewChaosEngine(seed int64) *ChaosEngine {
	return &ChaosEngine{
		rng:          rand.New(rand.NewSource(seed)),
		activeEvents: make(map[ActiveEvent]struct{}),
		eventParams:  make(map[ActiveEvent]json.RawMessage),
	}
}

// Configure replaces the engine's rule set and global parameters.
func (c *ChaosEngine) Configure(cfg ChaosConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = cfg.Enabled
	c.failureRate = cfg.FailureRate
	c.latencyMin = time.Duration(cfg.LatencyMin) * time.Millisecond
	c.latencyMax = time.Duration(cfg.LatencyMax) * time.Millisecond
	c.rules = cfg.Rules
}

// Enabled reports whether chaos is active.
func (c *ChaosEngine) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// kindMatchesEvent reports whether an active event forces operations
// of the given kind to fail (spec §4.10: "A query returns fail if any active
// event matches the operation kind").
func kindMatchesEvent(evt ActiveEvent, kind ChaosRuleType) bool {
	switch evt {
	case EventDiskFail, EventDiskFull, EventSlowIO:
		return kind == RuleFileReadFail || kind == RuleFileWriteFail
	case EventNetworkPartition:
		return kind == RuleNetworkTimeout || kind == RuleNetworkFail
	}
	return false
}

// query is the shared fail/no-fail decision for a given operation
// kind and subject (path or URL): active events first, then matching
// rules, then the global failure rate (spec §4.10).
func (c *ChaosEngine) query(kind ChaosRuleType, subject string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return false
	}

	for evt := range c.activeEvents {
		if kindMatchesEvent(evt, kind) {
			c.failuresInjected++
			return true
		}
	}

	for _, rule := range c.rules {
		if rule.Type != kind {
			continue
		}
		if rule.Pattern != "" && !pattern.Match(rule.Pattern, subject) {
			continue
		}
		if c.rng.Float64() < rule.Probability {
			c.failuresInjected++
			return true
		}
	}

	if c.rng.Float64() < c.failureRate {
		c.failuresInjected++
		return true
	}
	return false
}

// ShouldFailRead reports whether a read of path should be injected to
// fail.
func (c *ChaosEngine) ShouldFailRead(path string) bool { return c.query(RuleFileReadFail, path) }

// ShouldFailWrite reports whether a write to path should be injected
// to fail.
func (c *ChaosEngine) ShouldFailWrite(path string) bool { return c.query(RuleFileWriteFail, path) }

// ShouldFailNetwork reports whether a request to url should be
// injected to fail or time out.
func (c *ChaosEngine) ShouldFailNetwork(url string) bool {
	return c.query(RuleNetworkFail, url) || c.query(RuleNetworkTimeout, url)
}

// Latency returns a uniformly random delay in [latencyMin, latencyMax),
// or latencyMin when latencyMax is not greater than latencyMin.
func (c *ChaosEngine) Latency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latencyMax <= c.latencyMin {
		return c.latencyMin
	}
	span := c.latencyMax - c.latencyMin
	return c.latencyMin + time.Duration(c.rng.Int63n(int64(span)))
}

// InjectEvent activates a named event with structured parameters
// (SPEC_FULL.md supplemented feature: original_source's
// ChaosEngine::inject_event takes a params object, not just a type
// string).
func (c *ChaosEngine) InjectEvent(evt ActiveEvent, params json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeEvents[evt] = struct{}{}
	c.eventParams[evt] = params
}

// ClearEvents deactivates every injected event.
func (c *ChaosEngine) ClearEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeEvents = make(map[ActiveEvent]struct{})
	c.eventParams = make(map[ActiveEvent]json.RawMessage)
}
