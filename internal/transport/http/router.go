// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/adiadia/hitl-gateway/internal/domain"
	"github.com/adiadia/hitl-gateway/internal/metrics"
	"github.com/adiadia/hitl-gateway/internal/notify"
	"github.com/adiadia/hitl-gateway/internal/transport/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultReviewURL = "/dashboard"

type Deps struct {
	Store     WorkflowStore
	Builder   ApprovalBuilder
	Processor DecisionProcessor
	Notifier  notify.Notifier
	Events    StatusSubscriber
	Health    HealthChecker
	Logger    *slog.Logger

	ReviewURL       string
	WebhookToken    string
	WebhookSecret   string
	RateLimitPerMin int

	Version   string
	Commit    string
	BuildDate string

	// Now overrides the clock used for timestamps and decision latency.
	Now func() time.Time
	// Heartbeat is the keep-alive period of the SSE stream.
	Heartbeat time.Duration
}

type handler struct {
	store     WorkflowStore
	builder   ApprovalBuilder
	processor DecisionProcessor
	notifier  notify.Notifier
	events    StatusSubscriber
	health    HealthChecker
	logger    *slog.Logger
	reviewURL string
	version   string
	now       func() time.Time
	heartbeat time.Duration
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Store == nil {
		panic("httptransport.NewRouter requires a store")
	}
	if deps.Builder == nil || deps.Processor == nil {
		panic("httptransport.NewRouter requires a builder and a processor")
	}
	metrics.Init()

	h := &handler{
		store:     deps.Store,
		builder:   deps.Builder,
		processor: deps.Processor,
		notifier:  deps.Notifier,
		events:    deps.Events,
		health:    deps.Health,
		logger:    logger,
		reviewURL: valueOrDefault(deps.ReviewURL, defaultReviewURL),
		version:   valueOrDefault(deps.Version, "dev"),
		now:       deps.Now,
		heartbeat: deps.Heartbeat,
	}
	if h.notifier == nil {
		h.notifier = notify.Nop
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.heartbeat <= 0 {
		h.heartbeat = 15 * time.Second
	}
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))
	r.Use(middleware.RateLimit(deps.RateLimitPerMin, logger))

	// ---------------- OPERATIONS ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health check hit")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    h.version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	r.Get("/health", h.healthStats)

	// ---------------- WORKFLOWS ----------------

	r.Post("/workflows", h.createWorkflow)
	r.Get("/workflows/{workflow_id}", h.getWorkflow)
	r.Get("/workflows/{workflow_id}/events", h.streamWorkflowEvents)

	// ---------------- APPROVALS ----------------

	r.Get("/approvals/pending", h.listPending)
	r.Get("/approvals/by-id/{approval_id}", h.getApproval)
	r.Post("/approvals/{workflow_id}/submit", h.submitApproval)

	// ---------------- AGENT WEBHOOKS ----------------

	r.Route("/api/v1/webhook", func(wh chi.Router) {
		wh.Use(middleware.WebhookTokenAuth(deps.WebhookToken, logger))
		wh.Use(middleware.VerifySignature(deps.WebhookSecret, logger))

		for _, cp := range domain.Checkpoints() {
			wh.Post("/hitl/"+cp.Slug(), h.checkpointWebhook(cp))
		}

		wh.Post("/agent-update", h.agentUpdate)
		wh.Post("/task-status", h.taskStatus)
		wh.Post("/agent-completion", h.agentCompletion)
		wh.Post("/error-notification", h.errorNotification)
	})

	return r
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
