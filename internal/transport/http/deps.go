// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/adiadia/hitl-gateway/internal/decision"
	"github.com/adiadia/hitl-gateway/internal/domain"
	"github.com/adiadia/hitl-gateway/internal/notify"
)

type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, params domain.CreateWorkflowParams) (domain.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (domain.Workflow, error)
	SaveCheckpointState(
		ctx context.Context,
		id string,
		checkpoint domain.CheckpointType,
		content string,
		metadata map[string]any,
		req domain.ApprovalRequest,
	) (domain.Workflow, error)
	UpdateStatus(ctx context.Context, id string, status domain.WorkflowStatus, checkpoint domain.CheckpointType) (bool, error)
	RecordTaskStatus(ctx context.Context, id string, event domain.TaskEvent) (bool, error)
	ResolveApproval(ctx context.Context, id string, resp domain.ApprovalResponse) (domain.Workflow, error)
	GetApproval(ctx context.Context, approvalID string) (domain.ApprovalRequest, error)
	ListPending(ctx context.Context) ([]domain.PendingApprovalSummary, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

type ApprovalBuilder interface {
	Build(ctx context.Context, n domain.CheckpointNotification) (domain.ApprovalRequest, error)
}

type DecisionProcessor interface {
	Process(workflowID string, wf domain.Workflow, resp domain.ApprovalResponse) (decision.Outcome, error)
}

type StatusSubscriber interface {
	Subscribe(workflowID string) (<-chan notify.StatusChange, func())
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
