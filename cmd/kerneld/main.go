// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// kerneld is the agent kernel's daemon entrypoint: it loads
// configuration, wires every subsystem into a kernel/context.Context,
// starts the kernel/reactor socket server, and optionally serves
// Prometheus metrics and auto-connects the relay tunnel bridge.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	kctx "github.com/clove-kernel/clove/kernel/context"
	"github.com/clove-kernel/clove/kernel/reactor"
	"github.com/clove-kernel/clove/lib/clock"
	"github.com/clove-kernel/clove/lib/dotenv"
	"github.com/clove-kernel/clove/lib/opcode"
	"github.com/clove-kernel/clove/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	// .env discovery walks upward from the working directory and the
	// executable's own directory (spec §6); idempotent, a no-op on
	// any call after the first in this process.
	_ = dotenv.Load(searchPaths())

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := kctx.New(clock.Real(), logger, cfg.KernelConfig)
	kctx.RegisterHandlers(ctx)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, ctx, logger)
	}

	if cfg.TunnelAutoConnect && cfg.RelayURL != "" {
		connectRelay(ctx, cfg, logger)
	}

	server := reactor.New(reactor.Config{SocketPath: cfg.SocketPath}, ctx, logger)

	stopCh := make(chan struct{})
	go func() {
		<-sigCtx.Done()
		close(stopCh)
	}()

	logger.Info("kerneld starting", "socket", cfg.SocketPath, "sandboxing", cfg.EnableSandboxing)
	return server.Serve(stopCh)
}

// searchPaths returns the directories dotenv.Load checks for a .env
// file: the current working directory and the directory containing
// this executable (spec §6 "located by walking upward from current
// working directory and the executable directory").
func searchPaths() []string {
	paths := []string{"."}
	if wd, err := os.Getwd(); err == nil {
		paths = append(paths, wd)
	}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Dir(exe))
	}
	return paths
}

// serveMetrics exposes the kernel's Prometheus registry over HTTP.
// Optional (spec §1 telemetry is out of scope for the core, but an
// ambient /metrics endpoint is how every teacher daemon in this pack
// exposes its prometheus/client_golang registry).
func serveMetrics(addr string, ctx *kctx.Context, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(ctx.Metrics.Registry, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

// connectRelay drives the same TUNNEL_CONNECT path a client would,
// so startup auto-connect and an explicit client request share one
// code path (kctx.Context.DispatchSyscall -> registerRelayHandlers).
func connectRelay(ctx *kctx.Context, cfg daemonConfig, logger *slog.Logger) {
	req := map[string]any{"url": cfg.RelayURL}
	payload, _ := json.Marshal(req)

	response := ctx.DispatchSyscall(0, opcode.TUNNEL_CONNECT, payload)
	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(response, &result); err != nil || !result.Success {
		logger.Warn("relay auto-connect failed", "url", cfg.RelayURL, "error", result.Error)
		return
	}
	logger.Info("relay tunnel connected", "url", cfg.RelayURL)
}
