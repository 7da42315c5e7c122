// SPDX-License-Identifier: Apache-2.0

// Package checkpoint turns checkpoint notifications into approval requests.
// Builders have no side effects besides logging; the caller persists the
// result.
package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adiadia/hitl-gateway/internal/domain"
	"github.com/google/uuid"
)

const (
	unknownClient = "Unknown Client"
	unknownTopic  = "Unknown Topic"
)

type template struct {
	title       string
	description string
	questions   []string
	priority    domain.Priority
	received    string
}

var templates = map[domain.CheckpointType]template{
	domain.CheckpointBrandVoice: {
		title: "Brand Voice Analysis: %s - %s",
		description: "The Brand Voice Specialist has analyzed the client's existing content " +
			"and generated AI Language Code parameters. Please review the analysis " +
			"and approve if the parameters accurately capture the brand's voice.",
		questions: []string{
			"Do the AI Language Code parameters match the client's brand voice?",
			"Is the tone analysis accurate?",
			"Are the vocabulary and formality levels appropriate?",
		},
		priority: domain.PriorityHigh,
		received: "Brand voice analysis ready for review",
	},
	domain.CheckpointStyleCompliance: {
		title: "Style Compliance Review: %s - %s",
		description: "The Style Compliance Agent has reviewed content adherence to brand voice " +
			"and style guidelines. Please approve if the content matches the approved " +
			"brand voice parameters.",
		questions: []string{
			"Does the content match the approved brand voice?",
			"Are all style guidelines followed?",
			"Is the tone consistent throughout?",
		},
		priority: domain.PriorityMedium,
		received: "Style compliance review ready for approval",
	},
	domain.CheckpointFinalQA: {
		title: "Final QA: %s - %s (Ready for Delivery)",
		description: "The Quality Assurance Editor has completed final review. " +
			"This is the last checkpoint before content delivery. " +
			"Please provide final approval or request any last-minute changes.",
		questions: []string{
			"Is the content ready for publication?",
			"Are all quality standards met?",
			"Are there any last-minute changes needed?",
		},
		priority: domain.PriorityHigh,
		received: "Final QA ready for approval",
	},
}

// Builder creates approval requests. The zero value is not usable; call
// NewBuilder.
type Builder struct {
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

type Option func(*Builder)

func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(b *Builder) {
		if newID != nil {
			b.newID = newID
		}
	}
}

func NewBuilder(logger *slog.Logger, opts ...Option) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		logger: logger,
		now:    time.Now,
		newID:  NewApprovalID,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewApprovalID returns "appr_" followed by 12 hex characters.
func NewApprovalID() string {
	return "appr_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Build dispatches on n.CheckpointType.
func (b *Builder) Build(ctx context.Context, n domain.CheckpointNotification) (domain.ApprovalRequest, error) {
	switch n.CheckpointType {
	case domain.CheckpointBrandVoice:
		return b.BrandVoice(ctx, n)
	case domain.CheckpointStyleCompliance:
		return b.StyleCompliance(ctx, n)
	case domain.CheckpointFinalQA:
		return b.FinalQA(ctx, n)
	default:
		return domain.ApprovalRequest{}, &domain.ValidationError{
			Field:  "checkpoint_type",
			Reason: fmt.Sprintf("unknown checkpoint type %q", n.CheckpointType),
		}
	}
}

func (b *Builder) BrandVoice(ctx context.Context, n domain.CheckpointNotification) (domain.ApprovalRequest, error) {
	return b.build(ctx, domain.CheckpointBrandVoice, n)
}

func (b *Builder) StyleCompliance(ctx context.Context, n domain.CheckpointNotification) (domain.ApprovalRequest, error) {
	return b.build(ctx, domain.CheckpointStyleCompliance, n)
}

func (b *Builder) FinalQA(ctx context.Context, n domain.CheckpointNotification) (domain.ApprovalRequest, error) {
	return b.build(ctx, domain.CheckpointFinalQA, n)
}

func (b *Builder) build(ctx context.Context, cp domain.CheckpointType, n domain.CheckpointNotification) (domain.ApprovalRequest, error) {
	if strings.TrimSpace(n.WorkflowID) == "" {
		return domain.ApprovalRequest{}, &domain.ValidationError{Field: "workflow_id", Reason: "is required"}
	}
	tpl := templates[cp]
	client := metadataText(n.Metadata, "client_name", unknownClient)
	topic := metadataText(n.Metadata, "topic", unknownTopic)

	req := domain.ApprovalRequest{
		ApprovalID:     b.newID(),
		WorkflowID:     n.WorkflowID,
		CheckpointType: cp,
		Title:          fmt.Sprintf(tpl.title, client, topic),
		Description:    tpl.description,
		Content:        n.Content,
		Questions:      append([]string(nil), tpl.questions...),
		Options:        domain.DefaultOptions(),
		Metadata:       requestMetadata(n),
		Priority:       tpl.priority,
		CreatedAt:      b.now().UTC().Truncate(time.Microsecond),
	}

	b.logger.InfoContext(ctx, "approval request created",
		"workflow_id", n.WorkflowID,
		"approval_id", req.ApprovalID,
		"checkpoint", cp,
		"client_name", client,
	)
	return req, nil
}

// ReceivedMessage is the acknowledgement returned to the agent that reported
// reaching cp.
func ReceivedMessage(cp domain.CheckpointType) string {
	if tpl, ok := templates[cp]; ok {
		return tpl.received
	}
	return "Checkpoint received"
}

func requestMetadata(n domain.CheckpointNotification) map[string]any {
	out := make(map[string]any, len(n.Metadata)+1)
	for k, v := range n.Metadata {
		out[k] = v
	}
	if n.AgentName != "" {
		out["agent_name"] = n.AgentName
	}
	return out
}

func metadataText(metadata map[string]any, key, fallback string) string {
	v, ok := metadata[key]
	if !ok || v == nil {
		return fallback
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return fallback
	}
	return s
}
