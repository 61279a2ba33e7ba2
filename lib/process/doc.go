// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers shared by every
// Clove command. It centralizes the one legitimate raw I/O pattern
// that exists before the structured logger is initialized: reporting
// a fatal startup error to stderr and exiting.
package process
