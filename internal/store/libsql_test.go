package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	s, err := NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDefinition(name string) *WorkflowRecord {
	return &WorkflowRecord{
		ID:        "wf-" + name,
		ProjectID: "proj-1",
		Name:      name,
		Label:     "Test " + name,
		Definition: schema.WorkflowDefinition{
			ID:        "wf-" + name,
			ProjectID: "proj-1",
			Name:      name,
			Steps: []schema.WorkflowStep{
				{ID: "out", Type: schema.StepTypeResolve},
			},
		},
	}
}

func TestWorkflowDefinitionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testDefinition("deploy")
	require.NoError(t, s.SaveWorkflowDefinition(ctx, rec))

	got, err := s.GetWorkflowDefinition(ctx, "wf-deploy")
	require.NoError(t, err)
	assert.Equal(t, "deploy", got.Name)
	assert.Equal(t, "Test deploy", got.Label)
	require.Len(t, got.Definition.Steps, 1)
	assert.Equal(t, schema.StepTypeResolve, got.Definition.Steps[0].Type)

	byName, err := s.GetWorkflowDefinitionByName(ctx, "proj-1", "deploy")
	require.NoError(t, err)
	assert.Equal(t, got.ID, byName.ID)

	// Upsert replaces the definition under the same id.
	rec.Label = "renamed"
	require.NoError(t, s.SaveWorkflowDefinition(ctx, rec))
	got, err = s.GetWorkflowDefinition(ctx, "wf-deploy")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Label)
}

func TestWorkflowDefinitionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetWorkflowDefinition(context.Background(), "ghost")
	require.Error(t, err)

	var berr *schema.BoticalError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, schema.ErrCodeNotFound, berr.Code)
}

func TestDeleteWorkflowDefinition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveWorkflowDefinition(ctx, testDefinition("doomed")))
	require.NoError(t, s.DeleteWorkflowDefinition(ctx, "wf-doomed"))

	_, err := s.GetWorkflowDefinition(ctx, "wf-doomed")
	require.Error(t, err)

	err = s.DeleteWorkflowDefinition(ctx, "wf-doomed")
	var berr *schema.BoticalError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, schema.ErrCodeNotFound, berr.Code)
}

func TestListWorkflowDefinitionsScopedByProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveWorkflowDefinition(ctx, testDefinition("alpha")))
	require.NoError(t, s.SaveWorkflowDefinition(ctx, testDefinition("beta")))

	other := testDefinition("gamma")
	other.ProjectID = "proj-2"
	require.NoError(t, s.SaveWorkflowDefinition(ctx, other))

	recs, err := s.ListWorkflowDefinitions(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "alpha", recs[0].Name)
	assert.Equal(t, "beta", recs[1].Name)
}

func TestExecutionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exec := &Execution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		ProjectID:  "proj-1",
		Status:     schema.ExecutionStatusPending,
		Input:      json.RawMessage(`{"n":1}`),
	}
	require.NoError(t, s.CreateExecution(ctx, exec))

	require.NoError(t, s.MarkExecutionRunning(ctx, "exec-1"))
	got, err := s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)

	require.NoError(t, s.CompleteExecution(ctx, "exec-1", []byte(`{"ok":true}`)))
	got, err = s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusCompleted, got.Status)
	assert.JSONEq(t, `{"ok":true}`, string(got.Output))
	assert.NotNil(t, got.CompletedAt)
}

func TestExecutionStatusMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateExecution(ctx, &Execution{
		ID: "exec-1", WorkflowID: "wf-1", ProjectID: "proj-1",
		Status: schema.ExecutionStatusPending,
	}))
	require.NoError(t, s.MarkExecutionRunning(ctx, "exec-1"))
	require.NoError(t, s.FailExecution(ctx, "exec-1", "boom"))

	// A terminal execution never transitions again.
	require.Error(t, s.CompleteExecution(ctx, "exec-1", []byte(`{}`)))
	require.Error(t, s.MarkExecutionRunning(ctx, "exec-1"))

	got, err := s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}

func TestListExecutionsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, status := range []schema.ExecutionStatus{
		schema.ExecutionStatusCompleted,
		schema.ExecutionStatusFailed,
		schema.ExecutionStatusCompleted,
	} {
		require.NoError(t, s.CreateExecution(ctx, &Execution{
			ID:         string(rune('a' + i)),
			WorkflowID: "wf-1",
			ProjectID:  "proj-1",
			Status:     status,
			CreatedAt:  time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}

	completed := schema.ExecutionStatusCompleted
	execs, err := s.ListExecutions(ctx, ExecutionFilter{ProjectID: "proj-1", Status: &completed})
	require.NoError(t, err)
	assert.Len(t, execs, 2)

	limited, err := s.ListExecutions(ctx, ExecutionFilter{ProjectID: "proj-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	// Newest first.
	assert.Equal(t, "c", limited[0].ID)
}

func TestStepExecutionUpsertAndPatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertStepExecution(ctx, &StepExecution{
		ExecutionID: "exec-1",
		StepID:      "fetch",
		Status:      schema.StepStatusPending,
	}))

	running := schema.StepStatusRunning
	started := time.Now().UTC()
	require.NoError(t, s.UpdateStepExecution(ctx, "exec-1", "fetch", StepPatch{
		Status:       &running,
		ResolvedArgs: json.RawMessage(`{"url":"https://example.com"}`),
		StartedAt:    &started,
	}))

	completed := schema.StepStatusCompleted
	done := time.Now().UTC()
	require.NoError(t, s.UpdateStepExecution(ctx, "exec-1", "fetch", StepPatch{
		Status:      &completed,
		Output:      json.RawMessage(`{"status_code":200}`),
		CompletedAt: &done,
	}))

	got, err := s.GetStepExecution(ctx, "exec-1", "fetch")
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusCompleted, got.Status)
	assert.JSONEq(t, `{"url":"https://example.com"}`, string(got.ResolvedArgs))
	assert.JSONEq(t, `{"status_code":200}`, string(got.Output))
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
}

func TestUpdateStepExecutionUnknownStep(t *testing.T) {
	s := newTestStore(t)

	running := schema.StepStatusRunning
	err := s.UpdateStepExecution(context.Background(), "exec-1", "ghost", StepPatch{Status: &running})
	require.Error(t, err)

	var berr *schema.BoticalError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, schema.ErrCodeNotFound, berr.Code)
}

func TestListStepExecutionsPreservesInsertOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.UpsertStepExecution(ctx, &StepExecution{
			ExecutionID: "exec-1", StepID: id, Status: schema.StepStatusPending,
		}))
	}

	steps, err := s.ListStepExecutions(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "zeta", steps[0].StepID)
	assert.Equal(t, "alpha", steps[1].StepID)
	assert.Equal(t, "mid", steps[2].StepID)
}

func TestApprovalRequestLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := &ApprovalRequest{
		ID:             "appr-1",
		ExecutionID:    "exec-1",
		StepID:         "gate",
		ProjectID:      "proj-1",
		Message:        "deploy?",
		Approvers:      []string{"alice", "bob"},
		TimeoutSeconds: 3600,
		Status:         schema.ApprovalStatusPending,
	}
	require.NoError(t, s.CreateApprovalRequest(ctx, req))

	got, err := s.GetApprovalRequest(ctx, "appr-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got.Approvers)
	assert.Equal(t, schema.ApprovalStatusPending, got.Status)

	require.NoError(t, s.RespondApprovalRequest(ctx, "appr-1", "alice", true))
	got, err = s.GetApprovalRequest(ctx, "appr-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ApprovalStatusApproved, got.Status)
	assert.Equal(t, "alice", got.RespondedBy)
	assert.NotNil(t, got.RespondedAt)

	// Double response is a conflict, unknown id is not found.
	err = s.RespondApprovalRequest(ctx, "appr-1", "bob", false)
	var berr *schema.BoticalError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, schema.ErrCodeConflict, berr.Code)

	err = s.RespondApprovalRequest(ctx, "ghost", "bob", false)
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, schema.ErrCodeNotFound, berr.Code)
}

func TestSessionAndMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &Session{
		ID:        "sess-1",
		ProjectID: "proj-1",
		Agent:     "analyst",
		Status:    "running",
	}))

	require.NoError(t, s.AppendMessage(ctx, &Message{SessionID: "sess-1", Role: "user", Content: "hi"}))
	require.NoError(t, s.AppendMessage(ctx, &Message{SessionID: "sess-1", Role: "assistant", Content: "hello"}))

	require.NoError(t, s.FinishSession(ctx, "sess-1", "completed", 0.05))

	sess, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", sess.Status)
	assert.Equal(t, 0.05, sess.TotalCost)

	msgs, err := s.ListMessages(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Greater(t, msgs[1].ID, msgs[0].ID)
}

func TestProjectMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddProjectMember(ctx, "proj-1", "bob", "member"))
	require.NoError(t, s.AddProjectMember(ctx, "proj-1", "alice", "owner"))
	// Upsert on the same user updates the role without duplicating.
	require.NoError(t, s.AddProjectMember(ctx, "proj-1", "bob", "owner"))

	members, err := s.ListProjectMembers(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)
}

func TestScheduledRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	next := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, s.CreateScheduledRun(ctx, &ScheduledRun{
		ID:             "sched-1",
		WorkflowID:     "wf-1",
		ProjectID:      "proj-1",
		CronExpression: "0 * * * *",
		Input:          json.RawMessage(`{"env":"prod"}`),
		Enabled:        true,
		NextRunAt:      &next,
	}))

	got, err := s.GetScheduledRun(ctx, "sched-1")
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, "0 * * * *", got.CronExpression)

	last := time.Now().UTC().Truncate(time.Second)
	disabled := false
	require.NoError(t, s.UpdateScheduledRun(ctx, "sched-1", ScheduledRunUpdate{
		Enabled:       &disabled,
		LastRunAt:     &last,
		LastRunStatus: "completed",
	}))

	got, err = s.GetScheduledRun(ctx, "sched-1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, "completed", got.LastRunStatus)
	require.NotNil(t, got.LastRunAt)

	enabled := true
	runs, err := s.ListScheduledRuns(ctx, ScheduledRunFilter{ProjectID: "proj-1", Enabled: &enabled})
	require.NoError(t, err)
	assert.Empty(t, runs)

	require.NoError(t, s.DeleteScheduledRun(ctx, "sched-1"))
	_, err = s.GetScheduledRun(ctx, "sched-1")
	require.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}
