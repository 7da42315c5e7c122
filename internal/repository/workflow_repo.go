// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/adiadia/hitl-gateway/internal/domain"
	"github.com/adiadia/hitl-gateway/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ store.Store = (*WorkflowRepository)(nil)

var workflowColumns = []string{
	"id",
	"client_name",
	"topic",
	"content_type",
	"audience",
	"ai_language_code",
	"status",
	"current_checkpoint",
	"content",
	"metadata",
	"current_approval_id",
	"created_at",
	"updated_at",
}

var approvalColumns = []string{
	"approval_id",
	"workflow_id",
	"checkpoint_type",
	"title",
	"description",
	"content",
	"questions",
	"options",
	"metadata",
	"priority",
	"created_at",
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WorkflowRepository is the Postgres Store. Mutations on one workflow are
// serialized by locking its row with SELECT ... FOR UPDATE; approval requests
// and history rows cascade when the workflow is deleted.
type WorkflowRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
	psql   sq.StatementBuilderType
}

func NewWorkflowRepository(pool *pgxpool.Pool, logger *slog.Logger) *WorkflowRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &WorkflowRepository{
		pool:   pool,
		logger: logger,
		now:    time.Now,
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *WorkflowRepository) CreateWorkflow(ctx context.Context, params domain.CreateWorkflowParams) (domain.Workflow, error) {
	if params.ID == "" {
		return domain.Workflow{}, &domain.ValidationError{Field: "workflow_id", Reason: "is required"}
	}

	wf := domain.NewWorkflow(params, r.timestamp())
	inserted, err := r.insertWorkflow(ctx, r.pool, wf)
	if err != nil {
		r.logger.Error("insert workflow failed", "workflow_id", params.ID, "error", err)
		return domain.Workflow{}, err
	}
	if !inserted {
		return domain.Workflow{}, domain.ErrDuplicateWorkflow
	}

	r.logger.Info("workflow created", "workflow_id", wf.ID)
	return wf, nil
}

func (r *WorkflowRepository) GetWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	wf, err := r.loadWorkflow(ctx, r.pool, id, false)
	if err != nil && !errors.Is(err, domain.ErrWorkflowNotFound) {
		r.logger.Error("get workflow failed", "workflow_id", id, "error", err)
	}
	return wf, err
}

func (r *WorkflowRepository) SaveCheckpointState(
	ctx context.Context,
	id string,
	checkpoint domain.CheckpointType,
	content string,
	metadata map[string]any,
	req domain.ApprovalRequest,
) (domain.Workflow, error) {
	if err := store.CheckApprovalRequest(id, checkpoint, &req); err != nil {
		return domain.Workflow{}, err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	var out domain.Workflow
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		prev, err := r.lockWorkflow(ctx, tx, id)
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			created := domain.NewWorkflow(domain.ParamsFromMetadata(id, metadata), r.timestamp())
			if _, err := r.insertWorkflow(ctx, tx, created); err != nil {
				return fmt.Errorf("insert workflow: %w", err)
			}
			r.logger.Info("workflow created at checkpoint", "workflow_id", id, "checkpoint", checkpoint)
			prev, err = r.lockWorkflow(ctx, tx, id)
		}
		if err != nil {
			return err
		}

		if err := r.saveApproval(ctx, tx, req); err != nil {
			if isDomainError(err) {
				return err
			}
			return fmt.Errorf("save approval request: %w", err)
		}

		metaJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		query, args, err := r.psql.Update("workflows").
			Set("content", content).
			Set("metadata", string(metaJSON)).
			Set("current_checkpoint", string(checkpoint)).
			Set("status", string(domain.WorkflowAwaitingApproval)).
			Set("current_approval_id", req.ApprovalID).
			Set("updated_at", domain.NextUpdatedAt(prev, r.now())).
			Where(sq.Eq{"id": id}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("update workflow: %w", err)
		}

		out, err = r.loadWorkflow(ctx, tx, id, false)
		return err
	})
	if err != nil {
		if !isDomainError(err) {
			r.logger.Error("save checkpoint state failed", "workflow_id", id, "checkpoint", checkpoint, "error", err)
		}
		return domain.Workflow{}, err
	}
	return out, nil
}

func (r *WorkflowRepository) UpdateStatus(ctx context.Context, id string, status domain.WorkflowStatus, checkpoint domain.CheckpointType) (bool, error) {
	found := true
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		prev, err := r.lockWorkflow(ctx, tx, id)
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}

		query, args, err := r.statusUpdate(id, status, checkpoint, domain.NextUpdatedAt(prev, r.now())).ToSql()
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		r.logger.Error("update workflow status failed", "workflow_id", id, "status", status, "error", err)
		return false, err
	}
	return found, nil
}

func (r *WorkflowRepository) RecordDecision(ctx context.Context, id string, checkpoint domain.CheckpointType, decision domain.Decision, feedback string) (bool, error) {
	found := true
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		prev, err := r.lockWorkflow(ctx, tx, id)
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}

		approvalID, err := r.currentApprovalID(ctx, tx, id)
		if err != nil {
			return err
		}
		rec := domain.DecisionRecord{
			ApprovalID: approvalID,
			Checkpoint: checkpoint,
			Decision:   decision,
			Feedback:   feedback,
			Timestamp:  r.timestamp(),
		}
		if err := r.insertDecision(ctx, tx, id, rec); err != nil {
			return err
		}
		return r.touch(ctx, tx, id, prev)
	})
	if err != nil {
		r.logger.Error("record decision failed", "workflow_id", id, "error", err)
		return false, err
	}
	return found, nil
}

func (r *WorkflowRepository) RecordTaskStatus(ctx context.Context, id string, event domain.TaskEvent) (bool, error) {
	if event.RecordedAt.IsZero() {
		event.RecordedAt = r.timestamp()
	}

	found := true
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		prev, err := r.lockWorkflow(ctx, tx, id)
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}

		query, args, err := r.psql.Insert("task_events").
			Columns("workflow_id", "task_id", "status", "agent_name", "recorded_at").
			Values(id, event.TaskID, event.Status, event.AgentName, event.RecordedAt).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert task event: %w", err)
		}
		return r.touch(ctx, tx, id, prev)
	})
	if err != nil {
		r.logger.Error("record task status failed", "workflow_id", id, "task_id", event.TaskID, "error", err)
		return false, err
	}
	return found, nil
}

func (r *WorkflowRepository) ResolveApproval(ctx context.Context, id string, resp domain.ApprovalResponse) (domain.Workflow, error) {
	if resp.Timestamp.IsZero() {
		resp.Timestamp = r.timestamp()
	}

	var out domain.Workflow
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		wf, err := r.loadWorkflow(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := store.CheckResolvable(wf, resp); err != nil {
			out = wf
			return err
		}

		if err := r.insertDecision(ctx, tx, id, store.NewDecisionRecord(wf.CurrentApprovalID(), resp)); err != nil {
			return err
		}
		query, args, err := r.statusUpdate(id, resp.Decision.ResultingStatus(), "", domain.NextUpdatedAt(wf.UpdatedAt, r.now())).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("update workflow status: %w", err)
		}

		out, err = r.loadWorkflow(ctx, tx, id, false)
		return err
	})
	if err != nil {
		if !isDomainError(err) {
			r.logger.Error("resolve approval failed", "workflow_id", id, "error", err)
		}
		return out, err
	}

	r.logger.Info("approval resolved",
		"workflow_id", id,
		"checkpoint", resp.Checkpoint,
		"decision", resp.Decision,
		"status", out.Status,
	)
	return out, nil
}

func (r *WorkflowRepository) GetApproval(ctx context.Context, approvalID string) (domain.ApprovalRequest, error) {
	query, args, err := r.psql.Select(approvalColumns...).
		From("approval_requests").
		Where(sq.Eq{"approval_id": approvalID}).
		ToSql()
	if err != nil {
		return domain.ApprovalRequest{}, err
	}

	req, err := scanApproval(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ApprovalRequest{}, domain.ErrApprovalNotFound
	}
	if err != nil {
		r.logger.Error("get approval failed", "approval_id", approvalID, "error", err)
		return domain.ApprovalRequest{}, err
	}
	return req, nil
}

// pendingQuery selects the current approval of every workflow still
// awaiting a decision, oldest first.
func (r *WorkflowRepository) pendingQuery() sq.SelectBuilder {
	cols := make([]string, 0, len(approvalColumns)+2)
	for _, c := range approvalColumns {
		cols = append(cols, "a."+c)
	}
	cols = append(cols, "w.client_name", "w.topic")

	return r.psql.Select(cols...).
		From("approval_requests a").
		Join("workflows w ON w.id = a.workflow_id AND w.current_approval_id = a.approval_id").
		Where(sq.Eq{"w.status": string(domain.WorkflowAwaitingApproval)}).
		OrderBy("a.created_at ASC", "a.seq ASC")
}

func (r *WorkflowRepository) ListPending(ctx context.Context) ([]domain.PendingApprovalSummary, error) {
	query, args, err := r.pendingQuery().ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("list pending query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PendingApprovalSummary, 0, 8)
	for rows.Next() {
		var (
			req    domain.ApprovalRequest
			client string
			topic  string
		)
		if err := scanApprovalInto(rows, &req, &client, &topic); err != nil {
			r.logger.Error("scan pending row failed", "error", err)
			return nil, err
		}
		out = append(out, store.Summarize(domain.Workflow{ID: req.WorkflowID, ClientName: client, Topic: topic}, req))
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("iterate pending rows failed", "error", err)
		return nil, err
	}
	return out, nil
}

func (r *WorkflowRepository) Stats(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats

	query, args, err := r.psql.Select("COUNT(*)").
		Column("COUNT(*) FILTER (WHERE status = ?)", string(domain.WorkflowAwaitingApproval)).
		Column("COUNT(*) FILTER (WHERE status = ?)", string(domain.WorkflowInProgress)).
		From("workflows").
		ToSql()
	if err != nil {
		return domain.Stats{}, err
	}
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&stats.TotalWorkflows,
		&stats.PendingApprovals,
		&stats.ActiveWorkflows,
	); err != nil {
		r.logger.Error("workflow stats query failed", "error", err)
		return domain.Stats{}, err
	}

	dayStart := r.now().UTC().Truncate(24 * time.Hour)
	query, args, err = r.psql.Select().
		Column("COUNT(*) FILTER (WHERE decision = ?)", string(domain.DecisionApprove)).
		Column("COUNT(*) FILTER (WHERE decision = ?)", string(domain.DecisionReject)).
		From("approval_history").
		Where(sq.GtOrEq{"decided_at": dayStart}).
		Where(sq.Lt{"decided_at": dayStart.Add(24 * time.Hour)}).
		ToSql()
	if err != nil {
		return domain.Stats{}, err
	}
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&stats.ApprovedToday, &stats.RejectedToday); err != nil {
		r.logger.Error("decision stats query failed", "error", err)
		return domain.Stats{}, err
	}

	return stats, nil
}

// Cleanup deletes workflows whose updated_at is older than the retention
// window regardless of status, AWAITING_APPROVAL included. Approval requests,
// history and task events cascade.
func (r *WorkflowRepository) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	cutoff := r.now().Add(-time.Duration(store.ClampRetentionDays(retentionDays)) * 24 * time.Hour)

	query, args, err := r.psql.Delete("workflows").Where(sq.Lt{"updated_at": cutoff}).ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("cleanup workflows failed", "retention_days", retentionDays, "error", err)
		return 0, err
	}

	removed := int(tag.RowsAffected())
	if removed > 0 {
		r.logger.Info("workflows cleaned up", "removed", removed, "retention_days", retentionDays)
	}
	return removed, nil
}

func (r *WorkflowRepository) statusUpdate(id string, status domain.WorkflowStatus, checkpoint domain.CheckpointType, updatedAt time.Time) sq.UpdateBuilder {
	b := r.psql.Update("workflows").
		Set("status", string(status)).
		Set("updated_at", updatedAt).
		Where(sq.Eq{"id": id})
	if checkpoint != "" {
		b = b.Set("current_checkpoint", string(checkpoint))
	}
	return b
}

func (r *WorkflowRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// lockWorkflow takes the row lock that serializes mutations on id and
// returns its current updated_at.
func (r *WorkflowRepository) lockWorkflow(ctx context.Context, tx pgx.Tx, id string) (time.Time, error) {
	query, args, err := r.psql.Select("updated_at").
		From("workflows").
		Where(sq.Eq{"id": id}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return time.Time{}, err
	}

	var updatedAt time.Time
	if err := tx.QueryRow(ctx, query, args...).Scan(&updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, domain.ErrWorkflowNotFound
		}
		return time.Time{}, err
	}
	return updatedAt, nil
}

func (r *WorkflowRepository) touch(ctx context.Context, tx pgx.Tx, id string, prev time.Time) error {
	query, args, err := r.psql.Update("workflows").
		Set("updated_at", domain.NextUpdatedAt(prev, r.now())).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, query, args...)
	return err
}

func (r *WorkflowRepository) currentApprovalID(ctx context.Context, q querier, id string) (string, error) {
	var approvalID *string
	if err := q.QueryRow(ctx, `SELECT current_approval_id FROM workflows WHERE id=$1`, id).Scan(&approvalID); err != nil {
		return "", err
	}
	if approvalID == nil {
		return "", nil
	}
	return *approvalID, nil
}

func (r *WorkflowRepository) insertWorkflow(ctx context.Context, q querier, wf domain.Workflow) (bool, error) {
	query, args, err := r.psql.Insert("workflows").
		Columns("id", "client_name", "topic", "content_type", "audience", "ai_language_code",
			"status", "content", "metadata", "created_at", "updated_at").
		Values(wf.ID, wf.ClientName, wf.Topic, wf.ContentType, wf.Audience, wf.AILanguageCode,
			string(wf.Status), wf.Content, "{}", wf.CreatedAt, wf.UpdatedAt).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// saveApproval indexes req. An approval id that is already indexed is left
// untouched and accepted only for the same workflow and checkpoint.
func (r *WorkflowRepository) saveApproval(ctx context.Context, tx pgx.Tx, req domain.ApprovalRequest) error {
	questions, err := json.Marshal(nonNilStrings(req.Questions))
	if err != nil {
		return err
	}
	options, err := json.Marshal(req.Options)
	if err != nil {
		return err
	}
	if req.Options == nil {
		options = []byte("[]")
	}
	meta := req.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	query, args, err := r.psql.Insert("approval_requests").
		Columns(approvalColumns...).
		Values(req.ApprovalID, req.WorkflowID, string(req.CheckpointType), req.Title, req.Description,
			req.Content, string(questions), string(options), string(metaJSON), string(req.Priority), req.CreatedAt).
		Suffix("ON CONFLICT (approval_id) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	query, args, err = r.psql.Select(approvalColumns...).
		From("approval_requests").
		Where(sq.Eq{"approval_id": req.ApprovalID}).
		ToSql()
	if err != nil {
		return err
	}
	existing, err := scanApproval(tx.QueryRow(ctx, query, args...))
	if err != nil {
		return fmt.Errorf("load indexed approval: %w", err)
	}
	return store.CheckApprovalReuse(existing, req)
}

func (r *WorkflowRepository) insertDecision(ctx context.Context, tx pgx.Tx, id string, rec domain.DecisionRecord) error {
	changes, err := json.Marshal(nonNilStrings(rec.SpecificChanges))
	if err != nil {
		return err
	}
	query, args, err := r.psql.Insert("approval_history").
		Columns("workflow_id", "approval_id", "checkpoint", "decision", "feedback",
			"reviewer_name", "comments", "specific_changes", "decided_at").
		Values(id, nullable(rec.ApprovalID), string(rec.Checkpoint), string(rec.Decision), rec.Feedback,
			rec.ReviewerName, rec.Comments, string(changes), rec.Timestamp.UTC().Truncate(time.Microsecond)).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert approval history: %w", err)
	}
	return nil
}

func (r *WorkflowRepository) loadWorkflow(ctx context.Context, q querier, id string, forUpdate bool) (domain.Workflow, error) {
	b := r.psql.Select(workflowColumns...).From("workflows").Where(sq.Eq{"id": id})
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return domain.Workflow{}, err
	}

	var (
		wf         domain.Workflow
		checkpoint *string
		approvalID *string
		metadata   []byte
		status     string
	)
	if err := q.QueryRow(ctx, query, args...).Scan(
		&wf.ID,
		&wf.ClientName,
		&wf.Topic,
		&wf.ContentType,
		&wf.Audience,
		&wf.AILanguageCode,
		&status,
		&checkpoint,
		&wf.Content,
		&metadata,
		&approvalID,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Workflow{}, domain.ErrWorkflowNotFound
		}
		return domain.Workflow{}, err
	}
	wf.Status = domain.WorkflowStatus(status)
	if checkpoint != nil {
		wf.CurrentCheckpoint = domain.CheckpointType(*checkpoint)
	}
	if err := json.Unmarshal(metadata, &wf.Metadata); err != nil {
		return domain.Workflow{}, fmt.Errorf("decode workflow metadata: %w", err)
	}

	if approvalID != nil {
		aq, aargs, err := r.psql.Select(approvalColumns...).
			From("approval_requests").
			Where(sq.Eq{"approval_id": *approvalID}).
			ToSql()
		if err != nil {
			return domain.Workflow{}, err
		}
		req, err := scanApproval(q.QueryRow(ctx, aq, aargs...))
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return domain.Workflow{}, fmt.Errorf("load approval request: %w", err)
		}
		if err == nil {
			wf.ApprovalRequest = &req
		}
	}

	if wf.ApprovalHistory, err = r.loadHistory(ctx, q, id); err != nil {
		return domain.Workflow{}, err
	}
	if wf.TaskHistory, err = r.loadTaskEvents(ctx, q, id); err != nil {
		return domain.Workflow{}, err
	}
	return wf, nil
}

func (r *WorkflowRepository) loadHistory(ctx context.Context, q querier, id string) ([]domain.DecisionRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT approval_id, checkpoint, decision, feedback, reviewer_name, comments, specific_changes, decided_at
		FROM approval_history
		WHERE workflow_id=$1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query approval history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DecisionRecord, 0, 4)
	for rows.Next() {
		var (
			rec        domain.DecisionRecord
			approvalID *string
			checkpoint string
			decision   string
			changes    []byte
		)
		if err := rows.Scan(
			&approvalID,
			&checkpoint,
			&decision,
			&rec.Feedback,
			&rec.ReviewerName,
			&rec.Comments,
			&changes,
			&rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan approval history: %w", err)
		}
		if approvalID != nil {
			rec.ApprovalID = *approvalID
		}
		rec.Checkpoint = domain.CheckpointType(checkpoint)
		rec.Decision = domain.Decision(decision)
		if err := json.Unmarshal(changes, &rec.SpecificChanges); err != nil {
			return nil, fmt.Errorf("decode specific changes: %w", err)
		}
		if len(rec.SpecificChanges) == 0 {
			rec.SpecificChanges = nil
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *WorkflowRepository) loadTaskEvents(ctx context.Context, q querier, id string) ([]domain.TaskEvent, error) {
	rows, err := q.Query(ctx, `
		SELECT task_id, status, agent_name, recorded_at
		FROM task_events
		WHERE workflow_id=$1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query task events: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TaskEvent, 0, 4)
	for rows.Next() {
		var ev domain.TaskEvent
		if err := rows.Scan(&ev.TaskID, &ev.Status, &ev.AgentName, &ev.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan task event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *WorkflowRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

func scanApproval(row pgx.Row) (domain.ApprovalRequest, error) {
	var req domain.ApprovalRequest
	err := scanApprovalInto(row, &req)
	return req, err
}

// scanApprovalInto scans approvalColumns into req followed by any extra
// destinations.
func scanApprovalInto(row pgx.Row, req *domain.ApprovalRequest, extra ...any) error {
	var (
		checkpoint string
		priority   string
		questions  []byte
		options    []byte
		metadata   []byte
	)
	dest := []any{
		&req.ApprovalID,
		&req.WorkflowID,
		&checkpoint,
		&req.Title,
		&req.Description,
		&req.Content,
		&questions,
		&options,
		&metadata,
		&priority,
		&req.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	req.CheckpointType = domain.CheckpointType(checkpoint)
	req.Priority = domain.Priority(priority)
	if err := json.Unmarshal(questions, &req.Questions); err != nil {
		return fmt.Errorf("decode questions: %w", err)
	}
	if err := json.Unmarshal(options, &req.Options); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	if err := json.Unmarshal(metadata, &req.Metadata); err != nil {
		return fmt.Errorf("decode approval metadata: %w", err)
	}
	return nil
}

func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrWorkflowNotFound) ||
		errors.Is(err, domain.ErrInvalidState) ||
		errors.Is(err, domain.ErrCheckpointMismatch) ||
		errors.Is(err, domain.ErrValidation)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
