// File: cmd/fauxmic/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxtest/fauxmic/cmd"
	"github.com/voxtest/fauxmic/internal/observability"
)

func main() {
	// Listen for interrupt signals so a walkthrough mid-flight shuts the
	// browser down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
