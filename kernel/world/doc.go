// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package world implements simulation "worlds" (spec §4.9-§4.11): an
// in-memory virtual filesystem, a network mock with a chaos fault
// injector, and the engine that manages a set of worlds and the
// at-most-one agent→world membership map.
//
// Grounded directly on original_source/src/kernel/virtual_fs.{hpp,cpp},
// world_engine.hpp, and src/worlds/world_engine.cpp — the three
// subsystems here (VFS, NetworkMock, ChaosEngine) and the engine's
// create/destroy/join/leave/snapshot/restore operations follow that
// design. Pattern matching for readonly/writable/intercept lists
// reuses lib/pattern (itself adapted from lib/principal.MatchPattern).
package world
