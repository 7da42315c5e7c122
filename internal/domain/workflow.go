// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"fmt"
	"strings"
	"time"
)

type WorkflowStatus string

const (
	WorkflowInProgress        WorkflowStatus = "IN_PROGRESS"
	WorkflowAwaitingApproval  WorkflowStatus = "AWAITING_APPROVAL"
	WorkflowApproved          WorkflowStatus = "APPROVED"
	WorkflowRejected          WorkflowStatus = "REJECTED"
	WorkflowRevisionRequested WorkflowStatus = "REVISION_REQUESTED"
	WorkflowCompleted         WorkflowStatus = "COMPLETED"
	WorkflowFailed            WorkflowStatus = "FAILED"
)

// WorkflowStatuses lists the full status vocabulary.
func WorkflowStatuses() []WorkflowStatus {
	return []WorkflowStatus{
		WorkflowInProgress,
		WorkflowAwaitingApproval,
		WorkflowApproved,
		WorkflowRejected,
		WorkflowRevisionRequested,
		WorkflowCompleted,
		WorkflowFailed,
	}
}

func ParseWorkflowStatus(raw string) (WorkflowStatus, error) {
	s := WorkflowStatus(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range WorkflowStatuses() {
		if s == known {
			return s, nil
		}
	}
	return "", &ValidationError{Field: "status", Reason: "unknown workflow status " + quote(raw)}
}

// Resolved reports whether a paused run may continue past its checkpoint.
func (s WorkflowStatus) Resolved() bool {
	switch s {
	case WorkflowApproved, WorkflowRejected, WorkflowRevisionRequested, WorkflowCompleted, WorkflowFailed:
		return true
	default:
		return false
	}
}

const (
	UnknownClient   = "Unknown"
	UnknownTopic    = "Unknown"
	UnknownType     = "unknown"
	UnknownAudience = "unknown"
)

type CreateWorkflowParams struct {
	ID             string
	ClientName     string
	Topic          string
	ContentType    string
	Audience       string
	AILanguageCode string
}

// ParamsFromMetadata derives creation parameters for a workflow first seen
// at a checkpoint.
func ParamsFromMetadata(id string, metadata map[string]any) CreateWorkflowParams {
	return CreateWorkflowParams{
		ID:             id,
		ClientName:     metadataString(metadata, "client_name", UnknownClient),
		Topic:          metadataString(metadata, "topic", UnknownTopic),
		ContentType:    metadataString(metadata, "content_type", UnknownType),
		Audience:       metadataString(metadata, "audience", UnknownAudience),
		AILanguageCode: metadataString(metadata, "ai_language_code", ""),
	}
}

// DecisionRecord is one entry of a workflow's append-only approval history.
type DecisionRecord struct {
	ApprovalID      string         `json:"approval_id,omitempty"`
	Checkpoint      CheckpointType `json:"checkpoint"`
	Decision        Decision       `json:"decision"`
	Feedback        string         `json:"feedback,omitempty"`
	ReviewerName    string         `json:"reviewer_name,omitempty"`
	Comments        string         `json:"comments,omitempty"`
	SpecificChanges []string       `json:"specific_changes,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Workflow is one content-creation run tracked through its checkpoints.
type Workflow struct {
	ID                string           `json:"workflow_id"`
	ClientName        string           `json:"client_name"`
	Topic             string           `json:"topic"`
	ContentType       string           `json:"content_type"`
	Audience          string           `json:"audience"`
	AILanguageCode    string           `json:"ai_language_code"`
	Status            WorkflowStatus   `json:"status"`
	CurrentCheckpoint CheckpointType   `json:"current_checkpoint,omitempty"`
	Content           string           `json:"content"`
	Metadata          map[string]any   `json:"metadata"`
	ApprovalRequest   *ApprovalRequest `json:"approval_request,omitempty"`
	ApprovalHistory   []DecisionRecord `json:"approval_history"`
	TaskHistory       []TaskEvent      `json:"task_history"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// NewWorkflow returns a freshly started workflow.
func NewWorkflow(params CreateWorkflowParams, now time.Time) Workflow {
	return Workflow{
		ID:              params.ID,
		ClientName:      params.ClientName,
		Topic:           params.Topic,
		ContentType:     valueOr(params.ContentType, UnknownType),
		Audience:        valueOr(params.Audience, UnknownAudience),
		AILanguageCode:  params.AILanguageCode,
		Status:          WorkflowInProgress,
		Metadata:        map[string]any{},
		ApprovalHistory: []DecisionRecord{},
		TaskHistory:     []TaskEvent{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clone returns a copy that shares no slices or maps with w.
func (w Workflow) Clone() Workflow {
	out := w
	out.Metadata = cloneMetadata(w.Metadata)
	if w.ApprovalRequest != nil {
		req := w.ApprovalRequest.Clone()
		out.ApprovalRequest = &req
	}
	out.ApprovalHistory = make([]DecisionRecord, len(w.ApprovalHistory))
	for i, rec := range w.ApprovalHistory {
		rec.SpecificChanges = append([]string(nil), rec.SpecificChanges...)
		out.ApprovalHistory[i] = rec
	}
	out.TaskHistory = append([]TaskEvent{}, w.TaskHistory...)
	return out
}

// CurrentApprovalID is the id of the approval the workflow is waiting on, or
// the last one it waited on.
func (w Workflow) CurrentApprovalID() string {
	if w.ApprovalRequest == nil {
		return ""
	}
	return w.ApprovalRequest.ApprovalID
}

// Stats summarizes the store for the health endpoint and dashboard.
type Stats struct {
	TotalWorkflows   int `json:"total_workflows"`
	PendingApprovals int `json:"pending_approvals"`
	ActiveWorkflows  int `json:"active_workflows"`
	ApprovedToday    int `json:"approved_today"`
	RejectedToday    int `json:"rejected_today"`
}

// CountDecisionToday folds one history record into the daily counters.
func (s *Stats) CountDecisionToday(rec DecisionRecord, now time.Time) {
	if !SameUTCDay(rec.Timestamp, now) {
		return
	}
	switch rec.Decision {
	case DecisionApprove:
		s.ApprovedToday++
	case DecisionReject:
		s.RejectedToday++
	}
}

func SameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// NextUpdatedAt returns the timestamp for a mutation that follows prev. The
// result is truncated to microseconds (the Postgres resolution) and is always
// strictly after prev, even when the clock has not advanced.
func NextUpdatedAt(prev, now time.Time) time.Time {
	next := now.UTC().Truncate(time.Microsecond)
	if !next.After(prev) {
		next = prev.Add(time.Microsecond)
	}
	return next
}

func cloneMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func metadataString(metadata map[string]any, key, fallback string) string {
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

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
