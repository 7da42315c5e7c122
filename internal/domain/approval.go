// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"strings"
	"time"
)

// Decision is a reviewer's verdict on an approval request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionRevise  Decision = "revise"
)

func ParseDecision(raw string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(raw))); d {
	case DecisionApprove, DecisionReject, DecisionRevise:
		return d, nil
	default:
		return "", &ValidationError{Field: "decision", Reason: "unknown decision " + quote(raw)}
	}
}

func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionRevise:
		return true
	default:
		return false
	}
}

// ResultingStatus is the workflow status a paused run observes once d has
// been applied.
func (d Decision) ResultingStatus() WorkflowStatus {
	switch d {
	case DecisionApprove:
		return WorkflowApproved
	case DecisionReject:
		return WorkflowRejected
	default:
		return WorkflowRevisionRequested
	}
}

func (d *Decision) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		*d = ""
		return nil
	}
	parsed, err := ParseDecision(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DefaultOptions is the decision vocabulary offered to reviewers.
func DefaultOptions() []Decision {
	return []Decision{DecisionApprove, DecisionReject, DecisionRevise}
}

type Priority string

// Checkpoint builders assign one of these.
const (
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// CheckpointNotification is what a pipeline run sends when it reaches a
// checkpoint.
type CheckpointNotification struct {
	WorkflowID     string         `json:"workflow_id"`
	CheckpointType CheckpointType `json:"checkpoint_type"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata"`
	Timestamp      string         `json:"timestamp,omitempty"`
	AgentName      string         `json:"agent_name,omitempty"`
	TaskOutput     map[string]any `json:"task_output,omitempty"`
}

// ApprovalRequest is the snapshot presented to a reviewer. It is never
// mutated after creation; a later checkpoint supersedes it with a new one.
type ApprovalRequest struct {
	ApprovalID     string         `json:"approval_id"`
	WorkflowID     string         `json:"workflow_id"`
	CheckpointType CheckpointType `json:"checkpoint_type"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Content        string         `json:"content"`
	Questions      []string       `json:"questions"`
	Options        []Decision     `json:"options"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Priority       Priority       `json:"priority"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (a ApprovalRequest) Clone() ApprovalRequest {
	out := a
	out.Questions = append([]string(nil), a.Questions...)
	out.Options = append([]Decision(nil), a.Options...)
	out.Metadata = cloneMetadata(a.Metadata)
	return out
}

// ApprovalResponse is a reviewer's decision on the workflow's current
// checkpoint.
type ApprovalResponse struct {
	Decision        Decision       `json:"decision"`
	Checkpoint      CheckpointType `json:"checkpoint"`
	Feedback        string         `json:"feedback"`
	ReviewerName    string         `json:"reviewer_name,omitempty"`
	Comments        string         `json:"comments,omitempty"`
	SpecificChanges []string       `json:"specific_changes,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Validate checks the fields that must be present before a response reaches
// the store.
func (r ApprovalResponse) Validate() error {
	if !r.Decision.Valid() {
		return &ValidationError{Field: "decision", Reason: "must be one of approve, reject, revise"}
	}
	if !r.Checkpoint.Valid() {
		return &ValidationError{Field: "checkpoint", Reason: "must be one of brand_voice, style_compliance, final_qa"}
	}
	if strings.TrimSpace(r.Feedback) == "" {
		return &ValidationError{Field: "feedback", Reason: "is required"}
	}
	return nil
}

// PendingApprovalSummary is the list-view row for an unresolved approval.
type PendingApprovalSummary struct {
	ApprovalID  string         `json:"approval_id"`
	WorkflowID  string         `json:"workflow_id"`
	Checkpoint  CheckpointType `json:"checkpoint"`
	ClientName  string         `json:"client_name"`
	Topic       string         `json:"topic"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Content     string         `json:"content"`
	Questions   []string       `json:"questions"`
	Priority    Priority       `json:"priority"`
	CreatedAt   time.Time      `json:"created_at"`
}
