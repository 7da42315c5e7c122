// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/adiadia/hitl-gateway/internal/domain"
	"github.com/adiadia/hitl-gateway/internal/persistence/postgres"
	"github.com/adiadia/hitl-gateway/internal/repository"
	"github.com/adiadia/hitl-gateway/internal/resume"
)

var errUsage = errors.New("usage")

type pendingLister interface {
	ListPending(ctx context.Context) ([]domain.PendingApprovalSummary, error)
}

type workflowCleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (int, error)
}

func gatewayFlags(fs *flag.FlagSet) (*string, *string) {
	url := fs.String("url", valueOrEnv("HITL_URL", defaultGatewayURL), "gateway base URL")
	token := fs.String("token", os.Getenv("HITL_TOKEN"), "bearer token sent to the gateway")
	return url, token
}

func runPending(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("pending", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	url, token := gatewayFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	return printPending(ctx, resume.NewClient(*url, *token, nil), out)
}

func printPending(ctx context.Context, lister pendingLister, out io.Writer) error {
	pending, err := lister.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending approvals: %w", err)
	}
	if len(pending) == 0 {
		_, err := fmt.Fprintln(out, "no pending approvals")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "WORKFLOW\tCHECKPOINT\tAPPROVAL\tPRIORITY\tCLIENT\tTOPIC\tWAITING")
	for _, p := range pending {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.WorkflowID,
			p.Checkpoint,
			p.ApprovalID,
			p.Priority,
			p.ClientName,
			p.Topic,
			time.Since(p.CreatedAt).Truncate(time.Second),
		)
	}
	return tw.Flush()
}

func runWait(ctx context.Context, logger *slog.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("wait", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	url, token := gatewayFlags(fs)
	timeout := fs.Duration("timeout", 30*time.Minute, "give up after this long")
	interval := fs.Duration("interval", 5*time.Second, "poll interval")
	approvalID := fs.String("approval", "", "approval id returned by the checkpoint webhook (default: the one pending now)")

	workflowID, rest := splitPositional(args)
	if err := fs.Parse(rest); err != nil {
		return errUsage
	}
	if workflowID == "" && fs.NArg() > 0 {
		workflowID = fs.Arg(0)
	}
	if strings.TrimSpace(workflowID) == "" {
		return errUsage
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	poller := resume.NewPoller(resume.NewClient(*url, *token, nil), *interval, logger)
	res, err := poller.Wait(ctx, workflowID, strings.TrimSpace(*approvalID))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("workflow %s still waiting after %s", workflowID, *timeout)
		}
		return err
	}
	return writeResult(out, res)
}

type waitOutput struct {
	WorkflowID string                 `json:"workflow_id"`
	ApprovalID string                 `json:"approval_id,omitempty"`
	Status     domain.WorkflowStatus  `json:"status"`
	Decision   *domain.DecisionRecord `json:"decision,omitempty"`
}

func writeResult(out io.Writer, res resume.Result) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(waitOutput{
		WorkflowID: res.Workflow.ID,
		ApprovalID: res.ApprovalID,
		Status:     res.Status,
		Decision:   res.Decision,
	})
}

func runCleanup(ctx context.Context, logger *slog.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	days := fs.Int("days", intOrEnv("RETENTION_DAYS", 30), "retention window in days")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	return cleanup(ctx, repository.NewWorkflowRepository(pool, logger), *days, out)
}

func cleanup(ctx context.Context, cleaner workflowCleaner, days int, out io.Writer) error {
	removed, err := cleaner.Cleanup(ctx, days)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	_, err = fmt.Fprintf(out, "removed %d workflow(s) idle for more than %d day(s)\n", removed, max(days, 1))
	return err
}

// splitPositional pulls a leading non-flag argument off args so that
// "wait wf_1 -timeout 5m" and "wait -timeout 5m wf_1" both work.
func splitPositional(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

func valueOrEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intOrEnv(key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return n
}
