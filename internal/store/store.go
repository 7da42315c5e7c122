// SPDX-License-Identifier: Apache-2.0

// Package store holds the workflow store contract and its in-memory
// implementation. The Postgres implementation lives in internal/repository.
package store

import (
	"context"

	"github.com/adiadia/hitl-gateway/internal/domain"
)

// Store is the single source of truth for workflow status and the index of
// approval requests. Every mutation goes through one of these methods so the
// updated_at bump can never be skipped.
//
// UpdateStatus, RecordDecision and RecordTaskStatus report an unknown
// workflow by returning false with a nil error. Callers must check the
// boolean.
type Store interface {
	CreateWorkflow(ctx context.Context, params domain.CreateWorkflowParams) (domain.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (domain.Workflow, error)
	SaveCheckpointState(ctx context.Context, id string, checkpoint domain.CheckpointType, content string, metadata map[string]any, req domain.ApprovalRequest) (domain.Workflow, error)
	UpdateStatus(ctx context.Context, id string, status domain.WorkflowStatus, checkpoint domain.CheckpointType) (bool, error)
	RecordDecision(ctx context.Context, id string, checkpoint domain.CheckpointType, decision domain.Decision, feedback string) (bool, error)
	RecordTaskStatus(ctx context.Context, id string, event domain.TaskEvent) (bool, error)
	ResolveApproval(ctx context.Context, id string, resp domain.ApprovalResponse) (domain.Workflow, error)
	GetApproval(ctx context.Context, approvalID string) (domain.ApprovalRequest, error)
	ListPending(ctx context.Context) ([]domain.PendingApprovalSummary, error)
	Stats(ctx context.Context) (domain.Stats, error)
	Cleanup(ctx context.Context, retentionDays int) (int, error)
}

// Summarize builds the pending-list row for req owned by wf.
func Summarize(wf domain.Workflow, req domain.ApprovalRequest) domain.PendingApprovalSummary {
	return domain.PendingApprovalSummary{
		ApprovalID:  req.ApprovalID,
		WorkflowID:  wf.ID,
		Checkpoint:  req.CheckpointType,
		ClientName:  wf.ClientName,
		Topic:       wf.Topic,
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		Questions:   append([]string(nil), req.Questions...),
		Priority:    req.Priority,
		CreatedAt:   req.CreatedAt,
	}
}

// ClampRetentionDays keeps a cleanup from ever targeting the current day.
func ClampRetentionDays(days int) int {
	if days < 1 {
		return 1
	}
	return days
}

// CheckResolvable reports why resp cannot be applied to wf, if it cannot.
func CheckResolvable(wf domain.Workflow, resp domain.ApprovalResponse) error {
	if wf.Status != domain.WorkflowAwaitingApproval {
		return &domain.InvalidStateError{WorkflowID: wf.ID, Status: wf.Status}
	}
	if resp.Checkpoint != wf.CurrentCheckpoint {
		return &domain.CheckpointMismatchError{
			WorkflowID: wf.ID,
			Current:    wf.CurrentCheckpoint,
			Submitted:  resp.Checkpoint,
		}
	}
	return nil
}

// CheckApprovalRequest validates req before it is attached to workflow id and
// fills in the owning ids when they were left blank.
func CheckApprovalRequest(id string, checkpoint domain.CheckpointType, req *domain.ApprovalRequest) error {
	if id == "" {
		return &domain.ValidationError{Field: "workflow_id", Reason: "is required"}
	}
	if !checkpoint.Valid() {
		return &domain.ValidationError{Field: "checkpoint", Reason: "unknown checkpoint type " + string(checkpoint)}
	}
	if req.ApprovalID == "" {
		return &domain.ValidationError{Field: "approval_id", Reason: "is required"}
	}
	if req.WorkflowID == "" {
		req.WorkflowID = id
	}
	if req.WorkflowID != id {
		return &domain.ValidationError{Field: "workflow_id", Reason: "approval belongs to workflow " + req.WorkflowID}
	}
	if req.CheckpointType == "" {
		req.CheckpointType = checkpoint
	}
	if req.CheckpointType != checkpoint {
		return &domain.ValidationError{Field: "checkpoint_type", Reason: "approval is for checkpoint " + string(req.CheckpointType)}
	}
	return nil
}

// CheckApprovalReuse allows an already indexed approval id to be saved again
// only for the same workflow and checkpoint. The indexed request is kept as is.
func CheckApprovalReuse(existing, req domain.ApprovalRequest) error {
	if existing.WorkflowID != req.WorkflowID {
		return &domain.ValidationError{
			Field:  "approval_id",
			Reason: req.ApprovalID + " already belongs to workflow " + existing.WorkflowID,
		}
	}
	if existing.CheckpointType != req.CheckpointType {
		return &domain.ValidationError{
			Field:  "approval_id",
			Reason: req.ApprovalID + " was issued for checkpoint " + string(existing.CheckpointType),
		}
	}
	return nil
}

// NewDecisionRecord is the history entry appended when resp is applied.
func NewDecisionRecord(approvalID string, resp domain.ApprovalResponse) domain.DecisionRecord {
	return domain.DecisionRecord{
		ApprovalID:      approvalID,
		Checkpoint:      resp.Checkpoint,
		Decision:        resp.Decision,
		Feedback:        resp.Feedback,
		ReviewerName:    resp.ReviewerName,
		Comments:        resp.Comments,
		SpecificChanges: append([]string(nil), resp.SpecificChanges...),
		Timestamp:       resp.Timestamp,
	}
}
