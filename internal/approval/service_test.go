package approval

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericvicenti/botical-sub000/internal/engine"
	"github.com/ericvicenti/botical-sub000/internal/store"
	"github.com/ericvicenti/botical-sub000/internal/streaming"
	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateBroadcastsAndPersists(t *testing.T) {
	s := newTestStore(t)
	hub := streaming.NewMemoryHub()
	svc := NewService(s, hub, nil)
	ctx := context.Background()

	events, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{
		EventTypes: []string{schema.EventApprovalRequired},
	})
	require.NoError(t, err)
	defer cancel()

	ticket, err := svc.Create(ctx, engine.ApprovalParams{
		ExecutionID:    "exec-1",
		StepID:         "gate",
		ProjectID:      "proj-1",
		Message:        "deploy?",
		Approvers:      []string{"alice", "bob"},
		TimeoutSeconds: 600,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, ticket.ApprovalID)
	assert.Equal(t, "pending", ticket.Status)
	assert.Equal(t, []string{"alice", "bob"}, ticket.Approvers)
	assert.Equal(t, 600, ticket.TimeoutSeconds)

	select {
	case ev := <-events:
		payload := ev.Payload.(map[string]any)
		assert.Equal(t, ticket.ApprovalID, payload["approvalId"])
		assert.Equal(t, "deploy?", payload["message"])
	case <-time.After(time.Second):
		t.Fatal("no approval event received")
	}

	req, err := svc.Get(ctx, ticket.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, schema.ApprovalStatusPending, req.Status)
	assert.Equal(t, "exec-1", req.ExecutionID)
}

func TestCreateDefaultsApproversToProjectMembers(t *testing.T) {
	s := newTestStore(t)
	svc := NewService(s, streaming.NewMemoryHub(), nil)
	ctx := context.Background()

	require.NoError(t, s.AddProjectMember(ctx, "proj-1", "alice", "owner"))
	require.NoError(t, s.AddProjectMember(ctx, "proj-1", "bob", "member"))

	ticket, err := svc.Create(ctx, engine.ApprovalParams{
		ExecutionID: "exec-1",
		StepID:      "gate",
		ProjectID:   "proj-1",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, ticket.Approvers)
	assert.Equal(t, DefaultTimeoutSeconds, ticket.TimeoutSeconds)
}

func TestCreateAutoApprove(t *testing.T) {
	s := newTestStore(t)
	svc := NewService(s, streaming.NewMemoryHub(), nil)
	ctx := context.Background()

	ticket, err := svc.Create(ctx, engine.ApprovalParams{
		ExecutionID: "exec-1",
		StepID:      "gate",
		ProjectID:   "proj-1",
		Approvers:   []string{"alice"},
		AutoApprove: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "approved", ticket.Status)

	req, err := svc.Get(ctx, ticket.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, schema.ApprovalStatusApproved, req.Status)
	assert.Equal(t, "system", req.RespondedBy)
}

func TestRespond(t *testing.T) {
	s := newTestStore(t)
	svc := NewService(s, streaming.NewMemoryHub(), nil)
	ctx := context.Background()

	ticket, err := svc.Create(ctx, engine.ApprovalParams{
		ExecutionID: "exec-1",
		StepID:      "gate",
		ProjectID:   "proj-1",
		Approvers:   []string{"alice"},
	})
	require.NoError(t, err)

	// Not an approver.
	_, err = svc.Respond(ctx, ticket.ApprovalID, "mallory", true)
	require.Error(t, err)

	req, err := svc.Respond(ctx, ticket.ApprovalID, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, schema.ApprovalStatusRejected, req.Status)
	assert.Equal(t, "alice", req.RespondedBy)

	// Already resolved.
	_, err = svc.Respond(ctx, ticket.ApprovalID, "alice", true)
	require.Error(t, err)
}

func TestExpired(t *testing.T) {
	now := time.Now().UTC()
	req := &store.ApprovalRequest{
		Status:         schema.ApprovalStatusPending,
		TimeoutSeconds: 60,
		CreatedAt:      now.Add(-2 * time.Minute),
	}
	assert.True(t, Expired(req, now))

	req.CreatedAt = now.Add(-30 * time.Second)
	assert.False(t, Expired(req, now))

	req.Status = schema.ApprovalStatusApproved
	assert.False(t, Expired(req, now))
}

func TestListPending(t *testing.T) {
	s := newTestStore(t)
	svc := NewService(s, streaming.NewMemoryHub(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, engine.ApprovalParams{
		ExecutionID: "exec-1", StepID: "a", ProjectID: "proj-1", Approvers: []string{"alice"},
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, engine.ApprovalParams{
		ExecutionID: "exec-1", StepID: "b", ProjectID: "proj-1", Approvers: []string{"alice"}, AutoApprove: true,
	})
	require.NoError(t, err)

	pending, err := svc.ListPending(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].StepID)
}
