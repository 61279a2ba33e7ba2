// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics implements the kernel's supplemented metrics surface
// (SPEC_FULL.md "Metrics surface", grounded on
// original_source/src/metrics/metrics.hpp): per-agent and system-wide
// resource counters backing the METRICS_SYSTEM, METRICS_AGENT,
// METRICS_ALL_AGENTS, and METRICS_CGROUP opcodes spec §6 names but
// never elaborates.
//
// Backed by github.com/prometheus/client_golang registries — the
// idiomatic Go choice for a process that wants scrapeable
// counters/gauges (promhttp.Handler serves them over HTTP alongside
// the kernel's own socket, see cmd/kerneld).
//
// Cgroup accounting is a black box: spec §1 lists "/proc and /sys
// metrics collectors" as deliberately out of scope ("pure readers of
// OS-exported counters"). CgroupReader is the seam — the kernel calls
// it and reports whatever it returns, never parsing cgroup files
// itself.
package metrics
