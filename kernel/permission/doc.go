// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package permission implements the kernel's per-agent capability
// store (spec §4.7): a capability set plus a named preset level,
// with path predicates evaluated against glob allow-lists.
//
// Grounded on the leaf-lock store pattern and lib/principal.MatchPattern
// (reused here as lib/pattern.Match) for the allow-list predicates.
package permission
