package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/jwebster45206/campaign-engine/internal/app"
	"github.com/jwebster45206/campaign-engine/internal/config"
	"github.com/jwebster45206/campaign-engine/internal/logger"
	"github.com/jwebster45206/campaign-engine/internal/tools"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// stdout carries the protocol.
	log := logger.SetupTo(os.Stderr, cfg)

	startCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	a, err := app.Build(startCtx, cfg, log)
	cancel()
	if err != nil {
		log.Error("Failed to initialize engine", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	s := server.NewMCPServer("campaign-engine", version, server.WithToolCapabilities(false))
	tools.New(a.Engine, log).Register(s)

	log.Info("MCP server listening on stdio", "storage_backend", cfg.StorageBackend)
	if err := server.ServeStdio(s); err != nil {
		log.Error("MCP server stopped", "error", err)
		_ = a.Close()
		os.Exit(1)
	}
}
