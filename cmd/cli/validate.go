// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// integrationPackages need a reachable DATABASE_URL.
var integrationPackages = []string{
	"./internal/repository",
	"./internal/persistence/postgres",
}

type validateStep struct {
	name string
	args []string
}

func validationSteps(databaseURL string, skipIntegration bool) []validateStep {
	steps := []validateStep{
		{name: "go vet", args: []string{"go", "vet", "./..."}},
		{name: "go test unit", args: []string{"go", "test", "-race", "./..."}},
	}
	if skipIntegration || strings.TrimSpace(databaseURL) == "" {
		return steps
	}
	args := append([]string{"go", "test", "-count=1", "-tags=integration"}, integrationPackages...)
	return append(steps, validateStep{name: "go test integration", args: args})
}

func runValidate(ctx context.Context, logger *slog.Logger, args []string) error {
	fset := flag.NewFlagSet("validate", flag.ContinueOnError)
	fset.SetOutput(io.Discard)
	skipIntegration := fset.Bool("skip-integration", false, "skip tests that need DATABASE_URL")
	if err := fset.Parse(args); err != nil {
		return errUsage
	}

	started := time.Now()
	if err := runGofmtCheck(ctx, logger); err != nil {
		return err
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if !*skipIntegration && strings.TrimSpace(databaseURL) == "" {
		logger.Info("skipping integration tests", "reason", "DATABASE_URL is not set")
	}
	for _, step := range validationSteps(databaseURL, *skipIntegration) {
		if err := runCommand(ctx, logger, step.name, step.args[0], step.args[1:]...); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	logger.Info("validation passed", "duration_ms", time.Since(started).Milliseconds())
	return nil
}

func runGofmtCheck(ctx context.Context, logger *slog.Logger) error {
	files, err := listGoFiles(".")
	if err != nil {
		return fmt.Errorf("list go files: %w", err)
	}
	if len(files) == 0 {
		logger.Info("skipping gofmt check", "reason", "no go files found")
		return nil
	}

	logger.Info("running step", "step", "gofmt", "files", len(files))
	cmd := exec.CommandContext(ctx, "gofmt", append([]string{"-l"}, files...)...)
	cmd.Stderr = os.Stderr

	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("gofmt: %w", err)
	}
	if unformatted := strings.TrimSpace(string(out)); unformatted != "" {
		return fmt.Errorf("gofmt would change files:\n%s", unformatted)
	}
	return nil
}

func runCommand(ctx context.Context, logger *slog.Logger, step string, name string, args ...string) error {
	logger.Info("running step", "step", step, "command", strings.Join(append([]string{name}, args...), " "))
	started := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	err := cmd.Run()
	if err != nil {
		exitCode := 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		logger.Error("step failed", "step", step, "duration_ms", time.Since(started).Milliseconds(), "exit_code", exitCode)
		return err
	}

	logger.Info("step completed", "step", step, "duration_ms", time.Since(started).Milliseconds())
	return nil
}

// listGoFiles walks root the way the go tool does: directories starting
// with "." or "_" and vendor/ are skipped.
func listGoFiles(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".go" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
