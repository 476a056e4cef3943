package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Workflow definitions ---

func (s *LibSQLStore) SaveWorkflowDefinition(ctx context.Context, rec *WorkflowRecord) error {
	def, err := json.Marshal(rec.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_definitions (id, project_id, name, label, category, definition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, label=excluded.label, category=excluded.category,
		   definition=excluded.definition, updated_at=CURRENT_TIMESTAMP`,
		rec.ID, rec.ProjectID, rec.Name, nullStr(rec.Label), nullStr(rec.Category),
		string(def), timeOrNow(rec.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetWorkflowDefinition(ctx context.Context, id string) (*WorkflowRecord, error) {
	return s.scanDefinition(s.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, label, category, definition, created_at, updated_at
		 FROM workflow_definitions WHERE id = ?`, id), "workflow definition", id)
}

func (s *LibSQLStore) GetWorkflowDefinitionByName(ctx context.Context, projectID, name string) (*WorkflowRecord, error) {
	return s.scanDefinition(s.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, label, category, definition, created_at, updated_at
		 FROM workflow_definitions WHERE project_id = ? AND name = ?`, projectID, name), "workflow definition", name)
}

func (s *LibSQLStore) scanDefinition(row *sql.Row, resource, id string) (*WorkflowRecord, error) {
	rec := &WorkflowRecord{}
	var label, category sql.NullString
	var defJSON string
	err := row.Scan(&rec.ID, &rec.ProjectID, &rec.Name, &label, &category, &defJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound(resource, id)
	}
	if err != nil {
		return nil, err
	}
	rec.Label = label.String
	rec.Category = category.String
	if err := json.Unmarshal([]byte(defJSON), &rec.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return rec, nil
}

func (s *LibSQLStore) ListWorkflowDefinitions(ctx context.Context, projectID string) ([]*WorkflowRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, label, category, definition, created_at, updated_at
		 FROM workflow_definitions WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*WorkflowRecord
	for rows.Next() {
		rec := &WorkflowRecord{}
		var label, category sql.NullString
		var defJSON string
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &rec.Name, &label, &category, &defJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Label = label.String
		rec.Category = category.String
		if err := json.Unmarshal([]byte(defJSON), &rec.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal definition %s: %w", rec.ID, err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *LibSQLStore) DeleteWorkflowDefinition(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflow_definitions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow definition", id)
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, exec *Execution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, workflow_id, project_id, status, input, output, error, created_at, started_at, completed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		exec.ID, exec.WorkflowID, exec.ProjectID, string(exec.Status),
		nullRaw(exec.Input), nullRaw(exec.Output), nullStr(exec.Error),
		timeOrNow(exec.CreatedAt), nullTime(exec.StartedAt), nullTime(exec.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	exec := &Execution{}
	var (
		inputJSON, outputJSON, errMsg sql.NullString
		startedAt, completedAt        sql.NullTime
		status                        string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, project_id, status, input, output, error, created_at, started_at, completed_at, updated_at
		 FROM executions WHERE id = ?`, id,
	).Scan(&exec.ID, &exec.WorkflowID, &exec.ProjectID, &status,
		&inputJSON, &outputJSON, &errMsg, &exec.CreatedAt, &startedAt, &completedAt, &exec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}
	exec.Status = schema.ExecutionStatus(status)
	exec.Input = rawOrNil(inputJSON)
	exec.Output = rawOrNil(outputJSON)
	exec.Error = errMsg.String
	if startedAt.Valid {
		exec.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	return exec, nil
}

// MarkExecutionRunning transitions a pending execution to running. Status
// monotonicity is enforced in SQL: a terminal execution is never demoted.
func (s *LibSQLStore) MarkExecutionRunning(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, started_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		string(schema.ExecutionStatusRunning), id, string(schema.ExecutionStatusPending))
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) CompleteExecution(ctx context.Context, id string, output []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, output = ?, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status NOT IN (?, ?, ?)`,
		string(schema.ExecutionStatusCompleted), nullRaw(output), id,
		string(schema.ExecutionStatusCompleted), string(schema.ExecutionStatusFailed), string(schema.ExecutionStatusCancelled))
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) FailExecution(ctx context.Context, id string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, error = ?, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status NOT IN (?, ?, ?)`,
		string(schema.ExecutionStatusFailed), errMsg, id,
		string(schema.ExecutionStatusCompleted), string(schema.ExecutionStatusFailed), string(schema.ExecutionStatusCancelled))
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	var where []string
	var args []any

	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, workflow_id, project_id, status, input, output, error, created_at, started_at, completed_at, updated_at FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec := &Execution{}
		var (
			inputJSON, outputJSON, errMsg sql.NullString
			startedAt, completedAt        sql.NullTime
			status                        string
		)
		if err := rows.Scan(&exec.ID, &exec.WorkflowID, &exec.ProjectID, &status,
			&inputJSON, &outputJSON, &errMsg, &exec.CreatedAt, &startedAt, &completedAt, &exec.UpdatedAt); err != nil {
			return nil, err
		}
		exec.Status = schema.ExecutionStatus(status)
		exec.Input = rawOrNil(inputJSON)
		exec.Output = rawOrNil(outputJSON)
		exec.Error = errMsg.String
		if startedAt.Valid {
			exec.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			exec.CompletedAt = &completedAt.Time
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

// --- Step executions ---

func (s *LibSQLStore) UpsertStepExecution(ctx context.Context, step *StepExecution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO step_executions (execution_id, step_id, status, resolved_args, output, error, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(execution_id, step_id) DO UPDATE SET
		   status=excluded.status, resolved_args=excluded.resolved_args, output=excluded.output,
		   error=excluded.error, started_at=excluded.started_at, completed_at=excluded.completed_at`,
		step.ExecutionID, step.StepID, string(step.Status),
		nullRaw(step.ResolvedArgs), nullRaw(step.Output), nullStr(step.Error),
		nullTime(step.StartedAt), nullTime(step.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) UpdateStepExecution(ctx context.Context, executionID, stepID string, patch StepPatch) error {
	var sets []string
	var args []any

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.ResolvedArgs != nil {
		sets = append(sets, "resolved_args = ?")
		args = append(args, string(patch.ResolvedArgs))
	}
	if patch.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, string(patch.Output))
	}
	if patch.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *patch.Error)
	}
	if patch.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *patch.StartedAt)
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *patch.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, executionID, stepID)

	query := fmt.Sprintf("UPDATE step_executions SET %s WHERE execution_id = ? AND step_id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "step execution", executionID+"/"+stepID)
}

func (s *LibSQLStore) GetStepExecution(ctx context.Context, executionID, stepID string) (*StepExecution, error) {
	step := &StepExecution{}
	var (
		resolvedArgs, outputJSON, errMsg sql.NullString
		startedAt, completedAt           sql.NullTime
		status                           string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT execution_id, step_id, status, resolved_args, output, error, started_at, completed_at
		 FROM step_executions WHERE execution_id = ? AND step_id = ?`, executionID, stepID,
	).Scan(&step.ExecutionID, &step.StepID, &status, &resolvedArgs, &outputJSON, &errMsg, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("step execution", executionID+"/"+stepID)
	}
	if err != nil {
		return nil, err
	}
	step.Status = schema.StepStatus(status)
	step.ResolvedArgs = rawOrNil(resolvedArgs)
	step.Output = rawOrNil(outputJSON)
	step.Error = errMsg.String
	if startedAt.Valid {
		step.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		step.CompletedAt = &completedAt.Time
	}
	return step, nil
}

func (s *LibSQLStore) ListStepExecutions(ctx context.Context, executionID string) ([]*StepExecution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT execution_id, step_id, status, resolved_args, output, error, started_at, completed_at
		 FROM step_executions WHERE execution_id = ? ORDER BY rowid`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*StepExecution
	for rows.Next() {
		step := &StepExecution{}
		var (
			resolvedArgs, outputJSON, errMsg sql.NullString
			startedAt, completedAt           sql.NullTime
			status                           string
		)
		if err := rows.Scan(&step.ExecutionID, &step.StepID, &status, &resolvedArgs, &outputJSON, &errMsg, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		step.Status = schema.StepStatus(status)
		step.ResolvedArgs = rawOrNil(resolvedArgs)
		step.Output = rawOrNil(outputJSON)
		step.Error = errMsg.String
		if startedAt.Valid {
			step.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			step.CompletedAt = &completedAt.Time
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// --- Approval requests ---

func (s *LibSQLStore) CreateApprovalRequest(ctx context.Context, req *ApprovalRequest) error {
	approvers, err := json.Marshal(req.Approvers)
	if err != nil {
		return fmt.Errorf("marshal approvers: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO approval_requests (id, execution_id, step_id, project_id, message, approvers, timeout_seconds, auto_approve, status, responded_by, responded_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.ExecutionID, req.StepID, req.ProjectID, nullStr(req.Message),
		string(approvers), req.TimeoutSeconds, boolToInt(req.AutoApprove),
		string(req.Status), nullStr(req.RespondedBy), nullTime(req.RespondedAt), timeOrNow(req.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetApprovalRequest(ctx context.Context, id string) (*ApprovalRequest, error) {
	req := &ApprovalRequest{}
	var (
		message, respondedBy sql.NullString
		approversJSON        string
		respondedAt          sql.NullTime
		autoApprove          int
		timeoutSeconds       sql.NullInt64
		status               string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, execution_id, step_id, project_id, message, approvers, timeout_seconds, auto_approve, status, responded_by, responded_at, created_at
		 FROM approval_requests WHERE id = ?`, id,
	).Scan(&req.ID, &req.ExecutionID, &req.StepID, &req.ProjectID, &message, &approversJSON,
		&timeoutSeconds, &autoApprove, &status, &respondedBy, &respondedAt, &req.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("approval request", id)
	}
	if err != nil {
		return nil, err
	}
	req.Message = message.String
	req.TimeoutSeconds = int(timeoutSeconds.Int64)
	req.AutoApprove = autoApprove != 0
	req.Status = schema.ApprovalStatus(status)
	req.RespondedBy = respondedBy.String
	if respondedAt.Valid {
		req.RespondedAt = &respondedAt.Time
	}
	if err := json.Unmarshal([]byte(approversJSON), &req.Approvers); err != nil {
		return nil, fmt.Errorf("unmarshal approvers: %w", err)
	}
	return req, nil
}

// RespondApprovalRequest resolves a pending request. Responding to an
// already-resolved request is a CONFLICT.
func (s *LibSQLStore) RespondApprovalRequest(ctx context.Context, id, responder string, approve bool) error {
	status := schema.ApprovalStatusRejected
	if approve {
		status = schema.ApprovalStatusApproved
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE approval_requests SET status = ?, responded_by = ?, responded_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		string(status), responder, id, string(schema.ApprovalStatusPending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := s.GetApprovalRequest(ctx, id); getErr != nil {
			return getErr
		}
		return schema.NewErrorf(schema.ErrCodeConflict, "approval request %q already resolved", id)
	}
	return nil
}

func (s *LibSQLStore) ListApprovalRequests(ctx context.Context, filter ApprovalFilter) ([]*ApprovalRequest, error) {
	var where []string
	var args []any

	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.ExecutionID != "" {
		where = append(where, "execution_id = ?")
		args = append(args, filter.ExecutionID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT id, execution_id, step_id, project_id, message, approvers, timeout_seconds, auto_approve, status, responded_by, responded_at, created_at FROM approval_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*ApprovalRequest
	for rows.Next() {
		req := &ApprovalRequest{}
		var (
			message, respondedBy sql.NullString
			approversJSON        string
			respondedAt          sql.NullTime
			autoApprove          int
			timeoutSeconds       sql.NullInt64
			status               string
		)
		if err := rows.Scan(&req.ID, &req.ExecutionID, &req.StepID, &req.ProjectID, &message, &approversJSON,
			&timeoutSeconds, &autoApprove, &status, &respondedBy, &respondedAt, &req.CreatedAt); err != nil {
			return nil, err
		}
		req.Message = message.String
		req.TimeoutSeconds = int(timeoutSeconds.Int64)
		req.AutoApprove = autoApprove != 0
		req.Status = schema.ApprovalStatus(status)
		req.RespondedBy = respondedBy.String
		if respondedAt.Valid {
			req.RespondedAt = &respondedAt.Time
		}
		if err := json.Unmarshal([]byte(approversJSON), &req.Approvers); err != nil {
			return nil, fmt.Errorf("unmarshal approvers for %s: %w", req.ID, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// --- Sessions and messages ---

func (s *LibSQLStore) CreateSession(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, project_id, parent_id, agent, system_prompt, provider_id, model_id, status, total_cost, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		sess.ID, sess.ProjectID, nullStr(sess.ParentID), nullStr(sess.Agent),
		nullStr(sess.SystemPrompt), nullStr(sess.ProviderID), nullStr(sess.ModelID),
		sess.Status, sess.TotalCost, timeOrNow(sess.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetSession(ctx context.Context, id string) (*Session, error) {
	sess := &Session{}
	var parentID, agent, systemPrompt, providerID, modelID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, parent_id, agent, system_prompt, provider_id, model_id, status, total_cost, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.ProjectID, &parentID, &agent, &systemPrompt, &providerID, &modelID,
		&sess.Status, &sess.TotalCost, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("session", id)
	}
	if err != nil {
		return nil, err
	}
	sess.ParentID = parentID.String
	sess.Agent = agent.String
	sess.SystemPrompt = systemPrompt.String
	sess.ProviderID = providerID.String
	sess.ModelID = modelID.String
	return sess, nil
}

func (s *LibSQLStore) FinishSession(ctx context.Context, id, status string, totalCost float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, total_cost = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, totalCost, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "session", id)
}

func (s *LibSQLStore) AppendMessage(ctx context.Context, msg *Message) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		msg.SessionID, msg.Role, msg.Content, timeOrNow(msg.CreatedAt))
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		msg.ID = id
	}
	return nil
}

func (s *LibSQLStore) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// --- Project members ---

func (s *LibSQLStore) AddProjectMember(ctx context.Context, projectID, userID, role string) error {
	if role == "" {
		role = "member"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_members (project_id, user_id, role) VALUES (?, ?, ?)
		 ON CONFLICT(project_id, user_id) DO UPDATE SET role=excluded.role`,
		projectID, userID, role)
	return err
}

func (s *LibSQLStore) ListProjectMembers(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM project_members WHERE project_id = ? ORDER BY user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		members = append(members, userID)
	}
	return members, rows.Err()
}

// --- Scheduled runs ---

func (s *LibSQLStore) CreateScheduledRun(ctx context.Context, run *ScheduledRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_runs (id, workflow_id, project_id, cron_expression, input, enabled, last_run_at, next_run_at, last_run_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, run.ProjectID, run.CronExpression,
		nullRaw(run.Input), boolToInt(run.Enabled),
		nullTime(run.LastRunAt), nullTime(run.NextRunAt), nullStr(run.LastRunStatus), timeOrNow(run.CreatedAt))
	return err
}

func (s *LibSQLStore) GetScheduledRun(ctx context.Context, id string) (*ScheduledRun, error) {
	run := &ScheduledRun{}
	var (
		inputJSON, lastStatus sql.NullString
		lastRunAt, nextRunAt  sql.NullTime
		enabled               int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, project_id, cron_expression, input, enabled, last_run_at, next_run_at, last_run_status, created_at
		 FROM scheduled_runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.WorkflowID, &run.ProjectID, &run.CronExpression, &inputJSON,
		&enabled, &lastRunAt, &nextRunAt, &lastStatus, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled run", id)
	}
	if err != nil {
		return nil, err
	}
	run.Input = rawOrNil(inputJSON)
	run.Enabled = enabled != 0
	run.LastRunStatus = lastStatus.String
	if lastRunAt.Valid {
		run.LastRunAt = &lastRunAt.Time
	}
	if nextRunAt.Valid {
		run.NextRunAt = &nextRunAt.Time
	}
	return run, nil
}

func (s *LibSQLStore) UpdateScheduledRun(ctx context.Context, id string, update ScheduledRunUpdate) error {
	var sets []string
	var args []any

	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolToInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scheduled_runs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled run", id)
}

func (s *LibSQLStore) ListScheduledRuns(ctx context.Context, filter ScheduledRunFilter) ([]*ScheduledRun, error) {
	var where []string
	var args []any

	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolToInt(*filter.Enabled))
	}

	query := `SELECT id, workflow_id, project_id, cron_expression, input, enabled, last_run_at, next_run_at, last_run_status, created_at FROM scheduled_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*ScheduledRun
	for rows.Next() {
		run := &ScheduledRun{}
		var (
			inputJSON, lastStatus sql.NullString
			lastRunAt, nextRunAt  sql.NullTime
			enabled               int
		)
		if err := rows.Scan(&run.ID, &run.WorkflowID, &run.ProjectID, &run.CronExpression, &inputJSON,
			&enabled, &lastRunAt, &nextRunAt, &lastStatus, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.Input = rawOrNil(inputJSON)
		run.Enabled = enabled != 0
		run.LastRunStatus = lastStatus.String
		if lastRunAt.Valid {
			run.LastRunAt = &lastRunAt.Time
		}
		if nextRunAt.Valid {
			run.NextRunAt = &nextRunAt.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled run", id)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.BoticalError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*LibSQLStore)(nil)
