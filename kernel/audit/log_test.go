// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/clove-kernel/clove/lib/clock"
)

func testClock() clock.Clock {
	return clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestLogSuppressesDisabledCategory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogNetwork = false
	l := New(testClock(), cfg)

	if id := l.Log(CategoryNetwork, 1, "HTTP", nil, true); id != 0 {
		t.Fatalf("expected suppressed log to return seq id 0, got %d", id)
	}
	if id := l.Log(CategorySecurity, 1, "DENY", nil, false); id == 0 {
		t.Fatalf("expected enabled category to return a nonzero seq id")
	}
}

func TestGetEntriesFiltersByCategoryAgentAndSinceID(t *testing.T) {
	l := New(testClock(), DefaultConfig())

	l.Log(CategorySyscalls, 1, "READ", nil, true)
	l.Log(CategorySecurity, 1, "DENY", nil, false)
	l.Log(CategorySyscalls, 2, "WRITE", nil, true)

	cat := CategorySyscalls
	entries := l.GetEntries(&cat, nil, 0, 0)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}

	agent := uint32(1)
	entries = l.GetEntries(nil, &agent, 0, 0)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}

	entries = l.GetEntries(nil, nil, 1, 0)
	if len(entries) != 2 || entries[0].SeqID != 2 {
		t.Fatalf("since_id filter wrong: %+v", entries)
	}
}

func TestRingCapsAtMaxEntries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntries = 3
	l := New(testClock(), cfg)

	for i := 0; i < 5; i++ {
		l.Log(CategorySyscalls, 1, "X", nil, true)
	}

	entries := l.GetEntries(nil, nil, 0, 0)
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].SeqID != 3 || entries[2].SeqID != 5 {
		t.Fatalf("expected the oldest two entries to have been dropped, got %+v", entries)
	}
}

func TestRecordingCapturesOnlyWhileActive(t *testing.T) {
	l := New(testClock(), DefaultConfig())

	l.Log(CategorySyscalls, 1, "before", nil, true)
	l.StartRecording()
	l.Log(CategorySyscalls, 1, "during-1", nil, true)
	l.Log(CategorySyscalls, 1, "during-2", nil, true)
	recorded := l.StopRecording()
	l.Log(CategorySyscalls, 1, "after", nil, true)

	if len(recorded) != 2 {
		t.Fatalf("len(recorded) = %d, want 2", len(recorded))
	}
	if recorded[0].Label != "during-1" || recorded[1].Label != "during-2" {
		t.Fatalf("recorded entries out of order: %+v", recorded)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	l := New(testClock(), DefaultConfig())
	l.Log(CategorySyscalls, 1, "a", json.RawMessage(`{"n":1}`), true)
	l.Log(CategorySecurity, 2, "b", json.RawMessage(`{"n":2}`), false)

	original := l.GetEntries(nil, nil, 0, 0)

	batch, err := Export(original)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	decoded, err := Decode(batch)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != len(original) {
		t.Fatalf("len(decoded) = %d, want %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i].SeqID != original[i].SeqID || decoded[i].Label != original[i].Label {
			t.Fatalf("entry %d mismatch: got %+v, want %+v", i, decoded[i], original[i])
		}
	}
}

func TestDecodeRejectsTamperedDigest(t *testing.T) {
	l := New(testClock(), DefaultConfig())
	l.Log(CategorySyscalls, 1, "a", nil, true)
	batch, err := Export(l.GetEntries(nil, nil, 0, 0))
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	batch.Digest[0] ^= 0xFF

	if _, err := Decode(batch); err != ErrDigestMismatch {
		t.Fatalf("Decode error = %v, want ErrDigestMismatch", err)
	}
}

// TestReplayVisitsEntriesInOrder covers spec §8's round-trip property:
// export→import followed by replay visits the same number of entries
// in the same order.
func TestReplayVisitsEntriesInOrder(t *testing.T) {
	l := New(testClock(), DefaultConfig())
	l.Log(CategorySyscalls, 1, "one", nil, true)
	l.Log(CategorySyscalls, 1, "two", nil, true)
	l.Log(CategorySyscalls, 1, "three", nil, true)

	original := l.GetEntries(nil, nil, 0, 0)
	l.Import(original)

	var visited []Entry
	l.StartReplay(func(e Entry) error {
		visited = append(visited, e)
		return nil
	})

	for status := l.ReplayStatus(); status.State == ReplayRunning; status = l.ReplayStatus() {
		l.Tick()
	}

	if len(visited) != len(original) {
		t.Fatalf("len(visited) = %d, want %d", len(visited), len(original))
	}
	for i := range original {
		if visited[i].SeqID != original[i].SeqID {
			t.Fatalf("entry %d out of order: got seq %d, want %d", i, visited[i].SeqID, original[i].SeqID)
		}
	}

	final := l.ReplayStatus()
	if final.State != ReplayCompleted {
		t.Fatalf("final state = %v, want COMPLETED", final.State)
	}
	if final.Replayed != 3 || final.Skipped != 0 {
		t.Fatalf("final progress = %+v, want replayed=3 skipped=0", final)
	}
}

func TestReplayHandlerSkipAndError(t *testing.T) {
	l := New(testClock(), DefaultConfig())
	l.Log(CategorySyscalls, 1, "ok", nil, true)
	l.Log(CategorySyscalls, 1, "skip-me", nil, true)
	l.Log(CategorySyscalls, 1, "fail-me", nil, true)
	l.Log(CategorySyscalls, 1, "never-reached", nil, true)

	l.Import(l.GetEntries(nil, nil, 0, 0))
	l.StartReplay(func(e Entry) error {
		switch e.Label {
		case "skip-me":
			return ErrSkip
		case "fail-me":
			return errBoom
		default:
			return nil
		}
	})

	for i := 0; i < 10; i++ {
		if l.ReplayStatus().State != ReplayRunning {
			break
		}
		l.Tick()
	}

	final := l.ReplayStatus()
	if final.State != ReplayError {
		t.Fatalf("state = %v, want ERROR", final.State)
	}
	if final.Replayed != 1 || final.Skipped != 1 {
		t.Fatalf("progress = %+v, want replayed=1 skipped=1", final)
	}
	if final.Current != 3 {
		t.Fatalf("current = %d, want 3 (stopped at the failing entry)", final.Current)
	}
}

func TestPauseResumeHaltsTickProgress(t *testing.T) {
	l := New(testClock(), DefaultConfig())
	l.Log(CategorySyscalls, 1, "a", nil, true)
	l.Log(CategorySyscalls, 1, "b", nil, true)
	l.Import(l.GetEntries(nil, nil, 0, 0))

	l.StartReplay(func(Entry) error { return nil })
	l.Tick()
	l.Pause()
	l.Tick()
	l.Tick()

	if got := l.ReplayStatus(); got.Current != 1 || got.State != ReplayPaused {
		t.Fatalf("after pause = %+v, want current=1 state=PAUSED", got)
	}

	l.Resume()
	l.Tick()

	if got := l.ReplayStatus(); got.Current != 2 || got.State != ReplayCompleted {
		t.Fatalf("after resume = %+v, want current=2 state=COMPLETED", got)
	}
}

var errBoom = errSentinel("boom")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
