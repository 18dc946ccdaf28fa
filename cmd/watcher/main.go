package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ogulcanaydogan/pool-watcher/internal/cli"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return cli.Execute(ctx)
}
