// Command ariadne records machine-learning experiments in a local SQLite
// registry.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/ariadne/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
