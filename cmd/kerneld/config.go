// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"os"
	"strconv"

	kctx "github.com/clove-kernel/clove/kernel/context"
)

// daemonConfig is the kernel config struct named in spec §6:
// {socket_path, enable_sandboxing, relay_url, machine_id,
// machine_token, tunnel_auto_connect}, plus the ambient flags
// cmd/kerneld needs beyond what kernel/context.Config already covers.
type daemonConfig struct {
	SocketPath         string
	EnableSandboxing   bool
	RelayURL           string
	MachineID          string
	MachineToken       string
	TunnelAutoConnect  bool
	MetricsAddr        string
	AsyncWorkers       int
	KernelConfig       kctx.Config
}

// defaultDaemonConfig mirrors kctx.DefaultConfig for the fields
// cmd/kerneld owns directly.
func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		SocketPath:       "/tmp/clove.sock",
		EnableSandboxing: true,
		MetricsAddr:      "",
		KernelConfig:     kctx.DefaultConfig(),
	}
}

// loadConfig applies, in increasing priority order: built-in defaults,
// then environment variables (as populated by lib/dotenv.Load from a
// discovered .env file, or already present in the process
// environment), then command-line flags. This is the same precedence
// bureau-foundation-bureau's daemons use for config, just without a
// YAML layer since spec §6 specifies .env/flag config only.
func loadConfig(args []string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	if v := os.Getenv("CLOVE_SOCKET_PATH"); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv("CLOVE_ENABLE_SANDBOXING"); v != "" {
		cfg.EnableSandboxing, _ = strconv.ParseBool(v)
	}
	cfg.RelayURL = os.Getenv("CLOVE_RELAY_URL")
	cfg.MachineID = os.Getenv("CLOVE_MACHINE_ID")
	cfg.MachineToken = os.Getenv("CLOVE_MACHINE_TOKEN")
	if v := os.Getenv("CLOVE_TUNNEL_AUTO_CONNECT"); v != "" {
		cfg.TunnelAutoConnect, _ = strconv.ParseBool(v)
	}
	cfg.MetricsAddr = os.Getenv("CLOVE_METRICS_ADDR")

	flagSet := flag.NewFlagSet("kerneld", flag.ContinueOnError)
	flagSet.StringVar(&cfg.SocketPath, "socket", cfg.SocketPath, "path to the kernel's Unix domain socket")
	flagSet.BoolVar(&cfg.EnableSandboxing, "enable-sandboxing", cfg.EnableSandboxing, "run SPAWNed agents through the sandbox wrapper (spec §1 black box) instead of a bare PTY")
	flagSet.StringVar(&cfg.RelayURL, "relay-url", cfg.RelayURL, "relay proxy URL to auto-connect on startup (optional)")
	flagSet.BoolVar(&cfg.TunnelAutoConnect, "tunnel-auto-connect", cfg.TunnelAutoConnect, "connect the relay tunnel on startup if --relay-url is set")
	flagSet.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve Prometheus metrics on, e.g. :9090 (disabled if empty)")
	flagSet.IntVar(&cfg.KernelConfig.AsyncWorkers, "async-workers", cfg.KernelConfig.AsyncWorkers, "async task manager worker pool size")

	if err := flagSet.Parse(args); err != nil {
		return daemonConfig{}, err
	}

	cfg.KernelConfig.EnableSandboxing = cfg.EnableSandboxing
	return cfg, nil
}
