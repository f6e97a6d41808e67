package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jumppad-labs/modeltypes/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand(defaultManagerFactory).ExecuteContext(ctx)
	stop()

	if err != nil {
		newPrinter(os.Stderr).Error(errors.Pretty(err))
		os.Exit(1)
	}
}
