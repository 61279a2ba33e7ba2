// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// kernel-viewer is a standalone TUI for tailing a running kerneld's
// audit log and world list. Not part of the wire protocol itself —
// it's an ordinary kernel client, connecting over the same Unix socket
// and frame protocol any agent would (spec §4.1, §4.2), polling
// GET_AUDIT_LOG and WORLD_LIST on an interval.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/clove-kernel/clove/lib/dotenv"
	"github.com/clove-kernel/clove/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	_ = dotenv.Load([]string{"."})

	var socketPath string
	flagSet := pflag.NewFlagSet("kernel-viewer", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "socket", envOr("CLOVE_SOCKET_PATH", "/tmp/clove.sock"), "path to the kernel's Unix domain socket")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	c, err := dial(socketPath, "kernel-viewer")
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	defer c.Close()

	program := tea.NewProgram(newModel(c), tea.WithAltScreen())
	_, err = program.Run()
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
