// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import "testing"

func TestGetOrCreateDefaultsToStandard(t *testing.T) {
	store := New()
	record := store.GetOrCreate(1)
	if record.Level != Standard {
		t.Errorf("default level = %q, want %q", record.Level, Standard)
	}
	if record.Capabilities.CanSpawn {
		t.Error("STANDARD preset should not grant can_spawn")
	}
}

func TestSetLevelByNonSpawnerDenied(t *testing.T) {
	store := New()
	store.GetOrCreate(1) // agent 1 stays STANDARD, no can_spawn

	err := store.SetLevel(1, 2, Unrestricted)
	if err == nil {
		t.Fatal("expected ErrPermissionDenied")
	}
}

func TestSetLevelBySpawnerAllowed(t *testing.T) {
	store := New()
	store.SetLevel(1, 1, Unrestricted) // self-service always allowed

	if err := store.SetLevel(1, 2, Sandboxed); err != nil {
		t.Fatalf("spawner could not set another agent's level: %v", err)
	}
	record := store.GetOrCreate(2)
	if record.Level != Sandboxed {
		t.Errorf("target level = %q, want %q", record.Level, Sandboxed)
	}
}

func TestSetPermissionsSelfServiceAlwaysAllowed(t *testing.T) {
	store := New()
	caps := Capabilities{CanNetwork: true, ReadablePaths: []string{"tmp/**"}}
	if err := store.SetPermissions(1, 1, caps); err != nil {
		t.Fatalf("self-service SetPermissions denied: %v", err)
	}
}

func TestCapabilitiesPathPredicates(t *testing.T) {
	caps := FromLevel(Sandboxed)
	if !caps.CanRead("workspace/notes.txt") {
		t.Error("SANDBOXED should allow reading inside workspace/**")
	}
	if caps.CanRead("etc/passwd") {
		t.Error("SANDBOXED should not allow reading outside workspace/**")
	}

	minimal := FromLevel(Minimal)
	if minimal.CanRead("workspace/notes.txt") || minimal.CanWrite("workspace/notes.txt") {
		t.Error("MINIMAL should grant no path access")
	}
}

func TestRemovePurgesRecord(t *testing.T) {
	store := New()
	store.SetLevel(1, 1, Unrestricted)
	store.Remove(1)

	record := store.GetOrCreate(1)
	if record.Level != Standard {
		t.Error("Remove should clear prior state; GetOrCreate re-initializes to STANDARD")
	}
}
