// Command mcprun is a thin demonstration harness for mcpruntime: it loads a
// YAML manifest of servers, connects them all, lists their tools, and
// prints lifecycle events until interrupted. It calls nothing but the
// package's public API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcpcore/runtime"
)

const shutdownGrace = 10 * time.Second

func main() {
	manifest := flag.String("manifest", "", "Path to a YAML server manifest (required)")
	flag.StringVar(manifest, "m", "", "Path to a YAML server manifest (required) (shorthand)")
	flag.Parse()

	if *manifest == "" {
		fmt.Println("Error: -manifest is required")
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	specs, err := mcpruntime.LoadLaunchSpecsFromFile(*manifest)
	if err != nil {
		logger.Error("failed to load manifest", "err", err)
		os.Exit(1)
	}
	if len(specs) == 0 {
		logger.Error("manifest declares no servers", "path", *manifest)
		os.Exit(1)
	}

	rt := mcpruntime.New(mcpruntime.WithEnv(), mcpruntime.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := rt.Subscribe()
	defer rt.Unsubscribe(sub)
	go logEvents(logger, sub)

	for id, spec := range specs {
		if connErr := rt.ConnectServer(ctx, id, spec); connErr != nil {
			logger.Error("failed to connect server", "server_id", id, "err", connErr)
			continue
		}

		tools, toolsErr := rt.ListTools(ctx, id)
		if toolsErr != nil {
			logger.Error("failed to list tools", "server_id", id, "err", toolsErr)
			continue
		}
		logger.Info("connected", "server_id", id, "tools", string(tools))
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown reported an error", "err", err)
		os.Exit(1)
	}
}

func logEvents(logger *slog.Logger, sub *mcpruntime.Subscription) {
	for ev := range sub.Events() {
		logger.Info("event", "topic", ev.Topic, "server_id", ev.ServerID, "status", ev.Status, "reason", ev.Reason)
	}
}
