// Package main runs the branchcheck HTTP API and web UI, configured from the
// environment.
package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"branchcheck/internal/app"
	"branchcheck/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file (if present)
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg, err := config.Load(os.Getenv("BRANCHCHECK_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger(os.Stderr)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer a.Close() //nolint:errcheck

	production := os.Getenv("ENV") == "production"
	host := curlHostForListenAddr(cfg.Server.ListenAddr)
	logger.Info("web UI available", "url", "http://"+host+"/ui/")
	logger.Info("try the API", "example", "curl -X POST http://"+host+"/v1/branches/<branch-id>/runs")

	if err := a.Serve(ctx, production); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// curlHostForListenAddr turns a listen address into a host:port a client on
// the same machine can reach.
func curlHostForListenAddr(listenAddr string) string {
	addr := strings.TrimSpace(listenAddr)
	if addr == "" {
		return "localhost:8080"
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
