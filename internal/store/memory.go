// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/adiadia/hitl-gateway/internal/domain"
)

var _ Store = (*Memory)(nil)

type approvalEntry struct {
	req domain.ApprovalRequest
	seq uint64
}

// Memory is an in-process Store. A single lock covers both the workflow
// records and the approval index, so a checkpoint and its registry entry
// become visible together. Reads return deep copies.
type Memory struct {
	mu sync.RWMutex

	workflows map[string]*domain.Workflow
	approvals map[string]approvalEntry
	seq       uint64

	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Memory)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Memory) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		workflows: make(map[string]*domain.Workflow),
		approvals: make(map[string]approvalEntry),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) CreateWorkflow(_ context.Context, params domain.CreateWorkflowParams) (domain.Workflow, error) {
	if params.ID == "" {
		return domain.Workflow{}, &domain.ValidationError{Field: "workflow_id", Reason: "is required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workflows[params.ID]; ok {
		return domain.Workflow{}, domain.ErrDuplicateWorkflow
	}
	wf := domain.NewWorkflow(params, m.timestamp())
	m.workflows[wf.ID] = &wf
	return wf.Clone(), nil
}

func (m *Memory) GetWorkflow(_ context.Context, id string) (domain.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wf, ok := m.workflows[id]
	if !ok {
		return domain.Workflow{}, domain.ErrWorkflowNotFound
	}
	return wf.Clone(), nil
}

func (m *Memory) SaveCheckpointState(
	_ context.Context,
	id string,
	checkpoint domain.CheckpointType,
	content string,
	metadata map[string]any,
	req domain.ApprovalRequest,
) (domain.Workflow, error) {
	if err := CheckApprovalRequest(id, checkpoint, &req); err != nil {
		return domain.Workflow{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, indexed := m.approvals[req.ApprovalID]
	if indexed {
		if err := CheckApprovalReuse(entry.req, req); err != nil {
			return domain.Workflow{}, err
		}
		req = entry.req
	} else {
		m.seq++
		entry = approvalEntry{req: req.Clone(), seq: m.seq}
		m.approvals[req.ApprovalID] = entry
	}

	wf, ok := m.workflows[id]
	if !ok {
		created := domain.NewWorkflow(domain.ParamsFromMetadata(id, metadata), m.timestamp())
		wf = &created
		m.workflows[id] = wf
		m.logger.Info("workflow created at checkpoint", "workflow_id", id, "checkpoint", checkpoint)
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	stored := req.Clone()
	wf.Content = content
	wf.Metadata = cloneMap(metadata)
	wf.CurrentCheckpoint = checkpoint
	wf.Status = domain.WorkflowAwaitingApproval
	wf.ApprovalRequest = &stored
	m.touch(wf)

	return wf.Clone(), nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, status domain.WorkflowStatus, checkpoint domain.CheckpointType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.workflows[id]
	if !ok {
		return false, nil
	}
	wf.Status = status
	if checkpoint != "" {
		wf.CurrentCheckpoint = checkpoint
	}
	m.touch(wf)
	return true, nil
}

func (m *Memory) RecordDecision(_ context.Context, id string, checkpoint domain.CheckpointType, decision domain.Decision, feedback string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.workflows[id]
	if !ok {
		return false, nil
	}
	wf.ApprovalHistory = append(wf.ApprovalHistory, domain.DecisionRecord{
		ApprovalID: wf.CurrentApprovalID(),
		Checkpoint: checkpoint,
		Decision:   decision,
		Feedback:   feedback,
		Timestamp:  m.timestamp(),
	})
	m.touch(wf)
	return true, nil
}

func (m *Memory) RecordTaskStatus(_ context.Context, id string, event domain.TaskEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.workflows[id]
	if !ok {
		return false, nil
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = m.timestamp()
	}
	wf.TaskHistory = append(wf.TaskHistory, event)
	m.touch(wf)
	return true, nil
}

// ResolveApproval checks the workflow is waiting on resp.Checkpoint, appends
// the decision to its history and moves it to the decision's status, all
// under one lock.
func (m *Memory) ResolveApproval(_ context.Context, id string, resp domain.ApprovalResponse) (domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.workflows[id]
	if !ok {
		return domain.Workflow{}, domain.ErrWorkflowNotFound
	}
	if err := CheckResolvable(*wf, resp); err != nil {
		return wf.Clone(), err
	}

	if resp.Timestamp.IsZero() {
		resp.Timestamp = m.timestamp()
	}
	wf.ApprovalHistory = append(wf.ApprovalHistory, NewDecisionRecord(wf.CurrentApprovalID(), resp))
	wf.Status = resp.Decision.ResultingStatus()
	m.touch(wf)
	return wf.Clone(), nil
}

func (m *Memory) GetApproval(_ context.Context, approvalID string) (domain.ApprovalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.approvals[approvalID]
	if !ok {
		return domain.ApprovalRequest{}, domain.ErrApprovalNotFound
	}
	return entry.req.Clone(), nil
}

// ListPending returns the current approval of every workflow still awaiting
// a decision, oldest first. Superseded and resolved entries stay indexed but
// are skipped.
func (m *Memory) ListPending(_ context.Context) ([]domain.PendingApprovalSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type row struct {
		summary domain.PendingApprovalSummary
		seq     uint64
	}
	rows := make([]row, 0)
	for approvalID, entry := range m.approvals {
		wf, ok := m.workflows[entry.req.WorkflowID]
		if !ok || wf.Status != domain.WorkflowAwaitingApproval || wf.CurrentApprovalID() != approvalID {
			continue
		}
		rows = append(rows, row{summary: Summarize(*wf, entry.req), seq: entry.seq})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.summary.CreatedAt.Equal(b.summary.CreatedAt) {
			return a.summary.CreatedAt.Before(b.summary.CreatedAt)
		}
		return a.seq < b.seq
	})

	out := make([]domain.PendingApprovalSummary, len(rows))
	for i, r := range rows {
		out[i] = r.summary
	}
	return out, nil
}

func (m *Memory) Stats(_ context.Context) (domain.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	stats := domain.Stats{TotalWorkflows: len(m.workflows)}
	for _, wf := range m.workflows {
		switch wf.Status {
		case domain.WorkflowAwaitingApproval:
			stats.PendingApprovals++
		case domain.WorkflowInProgress:
			stats.ActiveWorkflows++
		}
		for _, rec := range wf.ApprovalHistory {
			stats.CountDecisionToday(rec, now)
		}
	}
	return stats, nil
}

// Cleanup deletes every workflow whose updated_at is older than the
// retention window, whatever its status. A workflow left AWAITING_APPROVAL
// past the window is deleted too. Index entries owned by deleted workflows
// go with them.
func (m *Memory) Cleanup(_ context.Context, retentionDays int) (int, error) {
	cutoff := m.now().Add(-time.Duration(ClampRetentionDays(retentionDays)) * 24 * time.Hour)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, wf := range m.workflows {
		if wf.UpdatedAt.Before(cutoff) {
			delete(m.workflows, id)
			removed++
		}
	}
	for approvalID, entry := range m.approvals {
		if _, ok := m.workflows[entry.req.WorkflowID]; !ok {
			delete(m.approvals, approvalID)
		}
	}
	if removed > 0 {
		m.logger.Info("workflows cleaned up", "removed", removed, "retention_days", retentionDays)
	}
	return removed, nil
}

func (m *Memory) timestamp() time.Time {
	return m.now().UTC().Truncate(time.Microsecond)
}

// touch must be called with mu held.
func (m *Memory) touch(wf *domain.Workflow) {
	wf.UpdatedAt = domain.NextUpdatedAt(wf.UpdatedAt, m.now())
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
