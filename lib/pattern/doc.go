// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package pattern implements glob matching over "/"-separated strings
// with a recursive "**" wildcard, shared by the permissions store
// (path allow-lists, spec §4.7) and the world engine's virtual
// filesystem (intercept/readonly/writable patterns, spec §4.10).
package pattern
