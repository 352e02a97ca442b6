// ./main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/scenario-cli/cmd"
)

// main lets `go run .` behave like the scenario-cli binary.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}
