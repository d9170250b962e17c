// Command duelserver is the dedicated match server process: it binds a
// listener, waits for the orchestrator's InitServer request, then runs
// the match until it ends or the process is signaled.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"duelserver/internal/config"
	"duelserver/internal/httpapi"
	"duelserver/internal/logging"
	"duelserver/internal/script"
	"duelserver/internal/server"
)

const scriptsRoot = "scripts"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "duelserver: loading config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "duelserver: building logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	httpClient := httpapi.NewHTTPClient(cfg.HTTPTimeout)
	auth := httpapi.NewAuthClient(cfg.AuthServer, httpClient)
	deck := httpapi.NewDeckClient(cfg.DeckServer, httpClient)
	card := httpapi.NewCardClient(cfg.CardServer, httpClient)

	scripts := script.NewHost(logging.Component(logger, "script"))
	defer scripts.Close()
	if err := scripts.LoadScripts(scriptsRoot); err != nil {
		logger.Error("loading scripts", zap.Error(err))
		return 1
	}
	if err := scripts.SetGlobals(scriptsRoot); err != nil {
		logger.Error("indexing script manifests", zap.Error(err))
		return 1
	}

	addr := net.JoinHostPort(cfg.ListenHost, fmt.Sprintf("%d", cfg.ListenPort))
	uninit, err := server.NewUninitializedServer(addr, auth, deck, card, scripts, cfg.BroadcastInterval, logging.Component(logger, "server"))
	if err != nil {
		logger.Error("binding listener", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("awaiting match initialization", zap.String("addr", addr), zap.String("scripts_root", filepath.Clean(scriptsRoot)))
	instance, err := uninit.AwaitInitialization(ctx)
	if err != nil {
		logger.Error("server never initialized", zap.Error(err))
		return int(server.ExitInitFailed)
	}

	logger.Info("match started, accepting players")
	if err := instance.Listen(ctx); err != nil {
		logger.Error("server listen loop exited with error", zap.Error(err))
		return int(instance.Exit().Code)
	}

	logger.Info("server exited cleanly", zap.Any("exit_status", instance.Exit()))
	return int(instance.Exit().Code)
}
