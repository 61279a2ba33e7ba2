// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package async

import (
	"encoding/json"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/clove-kernel/clove/kernel/event"
	"github.com/clove-kernel/clove/lib/clock"
	"github.com/clove-kernel/clove/lib/opcode"
)

func TestRequestIDSequenceIsMonotone(t *testing.T) {
	bus := event.New(clock.Real())
	m := New(bus, 2, 0, 0)
	defer m.Stop()

	prev := m.NextRequestID()
	for i := 0; i < 100; i++ {
		next := m.NextRequestID()
		if next <= prev {
			t.Fatalf("request id sequence not monotone: %d followed by %d", prev, next)
		}
		prev = next
	}
}

func TestSubmitAndPollRoundTrip(t *testing.T) {
	bus := event.New(clock.Real())
	m := New(bus, 2, 0, 0)
	defer m.Stop()

	done := make(chan struct{})
	reqID := m.NextRequestID()
	err := m.Submit(1, reqID, opcode.EXEC, func() json.RawMessage {
		close(done)
		return json.RawMessage(`{"ok":true}`)
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}

	deadline := time.Now().Add(2 * time.Second)
	var results []Result
	for time.Now().Before(deadline) {
		results = m.Poll(1, 10)
		if len(results) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(results) != 1 {
		t.Fatalf("Poll returned %d results, want 1", len(results))
	}
	if results[0].RequestID != reqID {
		t.Errorf("result request_id = %d, want %d", results[0].RequestID, reqID)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	bus := event.New(clock.Real())
	m := New(bus, 1, rate.Limit(0.001), 1)
	defer m.Stop()

	if err := m.Submit(1, m.NextRequestID(), opcode.EXEC, func() json.RawMessage { return nil }); err != nil {
		t.Fatalf("first submit should consume the burst token: %v", err)
	}
	if err := m.Submit(1, m.NextRequestID(), opcode.EXEC, func() json.RawMessage { return nil }); err == nil {
		t.Fatal("expected ErrRateLimited on second rapid submission")
	}
}

func TestDiscardDropsQueuedResults(t *testing.T) {
	bus := event.New(clock.Real())
	m := New(bus, 1, 0, 0)
	defer m.Stop()

	done := make(chan struct{})
	m.Submit(1, m.NextRequestID(), opcode.EXEC, func() json.RawMessage {
		defer close(done)
		return json.RawMessage(`{}`)
	})
	<-done
	time.Sleep(20 * time.Millisecond) // let the worker publish the result

	m.Discard(1)
	if got := m.Poll(1, 10); len(got) != 0 {
		t.Errorf("Discard did not clear queued results: %v", got)
	}
}
