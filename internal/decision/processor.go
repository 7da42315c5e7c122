// SPDX-License-Identifier: Apache-2.0

// Package decision maps a reviewer's verdict on a checkpoint to the next
// pipeline action. It never touches storage.
package decision

import (
	"log/slog"

	"github.com/adiadia/hitl-gateway/internal/domain"
)

const (
	ActionProceedToContentStrategy   = "proceed_to_content_strategy"
	ActionProceedToFinalQA           = "proceed_to_final_qa"
	ActionDeliverContent             = "deliver_content"
	ActionRestartFromBrandVoice      = "restart_from_brand_voice"
	ActionRestartFromContentGen      = "restart_from_content_generation"
	ActionRestartFromStyleCompliance = "restart_from_style_compliance"
)

// Outcome is what the paused pipeline run should do next.
type Outcome struct {
	NextAction    string   `json:"next_action"`
	Message       string   `json:"message"`
	NextTask      string   `json:"next_task,omitempty"`
	RestartTask   string   `json:"restart_task,omitempty"`
	Issues        []string `json:"issues,omitempty"`
	RevisionItems []string `json:"revision_items,omitempty"`
	Feedback      string   `json:"feedback,omitempty"`
}

type route struct {
	action  string
	task    string
	message string
}

var approvals = map[domain.CheckpointType]route{
	domain.CheckpointBrandVoice: {
		action:  ActionProceedToContentStrategy,
		task:    "content_strategy_task",
		message: "Brand voice approved. Content Strategy task will begin.",
	},
	domain.CheckpointStyleCompliance: {
		action:  ActionProceedToFinalQA,
		task:    "final_quality_assurance_task",
		message: "Style compliance approved. Final QA task will begin.",
	},
	domain.CheckpointFinalQA: {
		action:  ActionDeliverContent,
		task:    "content_delivery_task",
		message: "Final QA approved. Content is ready for delivery.",
	},
}

var rejections = map[domain.CheckpointType]route{
	domain.CheckpointBrandVoice: {
		action:  ActionRestartFromBrandVoice,
		task:    "brand_voice_analysis_task",
		message: "Rejected. Will restart from Brand Voice Analysis task.",
	},
	domain.CheckpointStyleCompliance: {
		action:  ActionRestartFromContentGen,
		task:    "content_generation_task",
		message: "Rejected. Will restart from Content Generation task.",
	},
	domain.CheckpointFinalQA: {
		action:  ActionRestartFromStyleCompliance,
		task:    "style_compliance_review_task",
		message: "Rejected. Will restart from Style Compliance Review task.",
	},
}

type Processor struct {
	logger *slog.Logger
}

func NewProcessor(logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{logger: logger}
}

// Process computes the outcome of resp against the workflow's recorded
// state. The caller applies the resulting status transition.
func (p *Processor) Process(workflowID string, wf domain.Workflow, resp domain.ApprovalResponse) (Outcome, error) {
	if err := resp.Validate(); err != nil {
		return Outcome{}, err
	}
	if resp.Checkpoint != wf.CurrentCheckpoint {
		return Outcome{}, &domain.CheckpointMismatchError{
			WorkflowID: workflowID,
			Current:    wf.CurrentCheckpoint,
			Submitted:  resp.Checkpoint,
		}
	}

	var out Outcome
	switch resp.Decision {
	case domain.DecisionApprove:
		r := approvals[resp.Checkpoint]
		out = Outcome{NextAction: r.action, Message: r.message, NextTask: r.task}
		p.logger.Info("checkpoint approved", "workflow_id", workflowID, "checkpoint", resp.Checkpoint, "next_action", out.NextAction)
	case domain.DecisionReject:
		r := rejections[resp.Checkpoint]
		out = Outcome{
			NextAction:  r.action,
			Message:     r.message,
			RestartTask: r.task,
			Issues:      append([]string(nil), resp.SpecificChanges...),
		}
		p.logger.Warn("checkpoint rejected", "workflow_id", workflowID, "checkpoint", resp.Checkpoint, "next_action", out.NextAction)
	case domain.DecisionRevise:
		out = Outcome{
			NextAction:    "revise_" + string(resp.Checkpoint),
			Message:       "Revision requested. " + resp.Checkpoint.Label() + " Agent will address issues.",
			RevisionItems: append([]string(nil), resp.SpecificChanges...),
			Feedback:      resp.Feedback,
		}
		p.logger.Info("revision requested", "workflow_id", workflowID, "checkpoint", resp.Checkpoint, "next_action", out.NextAction)
	}
	return out, nil
}
