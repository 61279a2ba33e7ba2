// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package async

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/clove-kernel/clove/kernel/event"
	"github.com/clove-kernel/clove/lib/opcode"
)

// Result is one completed task's outcome, queued for the submitting
// agent to collect by polling (spec §3 "Async result").
type Result struct {
	RequestID uint64          `json:"request_id"`
	Opcode    opcode.Opcode   `json:"opcode"`
	Payload   json.RawMessage `json:"payload"`
}

// TaskFunc performs the blocking work and returns the payload to
// deliver as the eventual Result.
type TaskFunc func() json.RawMessage

type task struct {
	agentID   uint32
	requestID uint64
	opcode    opcode.Opcode
	fn        TaskFunc
}

// QueueWarningThreshold is the pending-task count at which Submit
// emits a RESOURCE_WARNING event (SPEC_FULL.md supplemented feature).
const QueueWarningThreshold = 256

// Manager is the kernel's async task subsystem. Safe for concurrent
// use.
type Manager struct {
	bus *event.Bus

	nextRequestID atomic.Uint64

	queue   chan task
	workers int
	wg      sync.WaitGroup
	closed  chan struct{}

	resultsMu sync.Mutex
	results   map[uint32][]Result

	limitersMu sync.Mutex
	limiters   map[uint32]*rate.Limiter
	limitRate  rate.Limit
	limitBurst int
}

// New starts a Manager with the given worker count, each consuming
// from a shared task queue (grounded on async_task_manager's fixed
// worker_count thread pool). limitRate/limitBurst configure the
// per-agent submission rate limiter; zero limitRate disables limiting.
func New(bus *event.Bus, workers int, limitRate rate.Limit, limitBurst int) *Manager {
	if workers <= 0 {
		workers = 1
	}
	m := &Manager{
		bus:        bus,
		queue:      make(chan task, 4096),
		workers:    workers,
		closed:     make(chan struct{}),
		results:    make(map[uint32][]Result),
		limiters:   make(map[uint32]*rate.Limiter),
		limitRate:  limitRate,
		limitBurst: limitBurst,
	}
	m.nextRequestID.Store(1)
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.workerLoop()
	}
	return m
}

// Stop signals every worker to exit after draining the current queue
// contents, then waits for them to finish.
func (m *Manager) Stop() {
	close(m.closed)
	close(m.queue)
	m.wg.Wait()
}

func (m *Manager) workerLoop() {
	defer m.wg.Done()
	for t := range m.queue {
		payload := t.fn()
		result := Result{RequestID: t.requestID, Opcode: t.opcode, Payload: payload}

		m.resultsMu.Lock()
		m.results[t.agentID] = append(m.results[t.agentID], result)
		m.resultsMu.Unlock()
	}
}

// NextRequestID returns the next value in the strictly monotone
// request id sequence for this process lifetime (spec §8 property 7).
func (m *Manager) NextRequestID() uint64 {
	return m.nextRequestID.Add(1) - 1
}

// ErrRateLimited is returned by Submit when agentID has exceeded its
// submission rate limit.
type ErrRateLimited struct {
	AgentID uint32
}

func (e *ErrRateLimited) Error() string {
	return "async: agent submission rate limit exceeded"
}

// Submit enqueues a task for agentID under requestID, returning
// immediately. The router handler that calls this must itself return
// {submitted: true, request_id} without blocking (spec §4.8,
// "Suspension points").
func (m *Manager) Submit(agentID uint32, requestID uint64, op opcode.Opcode, fn TaskFunc) error {
	if m.limitRate > 0 && !m.limiterFor(agentID).Allow() {
		return &ErrRateLimited{AgentID: agentID}
	}

	select {
	case <-m.closed:
		return nil
	default:
	}

	m.queue <- task{agentID: agentID, requestID: requestID, opcode: op, fn: fn}

	if len(m.queue) >= QueueWarningThreshold {
		data, _ := json.Marshal(map[string]any{
			"agent_id":   agentID,
			"queue_depth": len(m.queue),
		})
		m.bus.Emit(event.ResourceWarning, data, agentID)
	}
	return nil
}

func (m *Manager) limiterFor(agentID uint32) *rate.Limiter {
	m.limitersMu.Lock()
	defer m.limitersMu.Unlock()
	limiter, ok := m.limiters[agentID]
	if !ok {
		limiter = rate.NewLimiter(m.limitRate, m.limitBurst)
		m.limiters[agentID] = limiter
	}
	return limiter
}

// Poll drains up to max completed results for agentID in completion
// order (not request order — completions race independently of each
// other and of synchronous responses, spec §8 property "Async
// completions carry a request_id and are not ordered").
func (m *Manager) Poll(agentID uint32, max int) []Result {
	if max <= 0 {
		return nil
	}

	m.resultsMu.Lock()
	defer m.resultsMu.Unlock()

	queue := m.results[agentID]
	if len(queue) == 0 {
		return nil
	}

	n := max
	if n > len(queue) {
		n = len(queue)
	}
	drained := make([]Result, n)
	copy(drained, queue[:n])
	m.results[agentID] = queue[n:]
	return drained
}

// Discard drops any queued results for agentID without returning
// them, called when the agent is permanently removed — in-flight
// tasks already submitted still run to completion and their results
// are discarded on the next Discard or simply left unread (spec
// §4.8 "Cancellation & timeouts").
func (m *Manager) Discard(agentID uint32) {
	m.resultsMu.Lock()
	defer m.resultsMu.Unlock()
	delete(m.results, agentID)

	m.limitersMu.Lock()
	delete(m.limiters, agentID)
	m.limitersMu.Unlock()
}
