// SPDX-License-Identifier: Apache-2.0

// Command hitlctl talks to a running gateway and maintains its store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/adiadia/hitl-gateway/internal/logging"
)

const defaultGatewayURL = "http://localhost:8000"

func main() {
	logger := logging.NewLoggerTo(os.Stderr, os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "validate":
		err = runValidate(ctx, logger, os.Args[2:])
	case "pending":
		err = runPending(ctx, os.Args[2:], os.Stdout)
	case "wait":
		err = runWait(ctx, logger, os.Args[2:], os.Stdout)
	case "cleanup":
		err = runCleanup(ctx, logger, os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	default:
		printUsage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprint(w, `usage: hitlctl <command> [flags]

commands:
  validate [-skip-integration]           run gofmt, vet, and tests
  pending [-url URL]                     list approvals waiting on a reviewer
  wait <workflow_id> [-approval ID]      block until a reviewer decides on that approval
  cleanup [-days N]                      delete workflows idle longer than N days (needs DATABASE_URL)
`)
}
