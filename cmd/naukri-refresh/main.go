package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/jobdesk/naukri-refresh/cmd"
	"github.com/jobdesk/naukri-refresh/internal/observability"
)

const panicLogFile = "panic.log"

// Allows mocking os.Exit in tests.
var osExit = os.Exit

func main() {
	defer handlePanic()

	// Listen for interrupt signals (SIGINT, SIGTERM) for graceful shutdown;
	// the browser session and IMAP connection both honor the context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		observability.Sync()
		if errors.Is(err, context.Canceled) {
			osExit(0)
		}
		osExit(1)
	}
	observability.Sync()
}

// handlePanic records an unrecovered panic to a dedicated file so a cron or
// scheduler invocation leaves a trace even when stderr is discarded.
func handlePanic() {
	if r := recover(); r != nil {
		observability.Sync()

		message := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
		if err := os.WriteFile(panicLogFile, []byte(message), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "CRITICAL: failed to write panic log: %v\n", err)
			fmt.Fprintf(os.Stderr, "%s\n", message)
		} else {
			fmt.Fprintf(os.Stderr, "crash detected, details logged to %s\n", panicLogFile)
		}
		osExit(1)
	}
}
