package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericvicenti/botical-sub000/internal/engine"
	"github.com/ericvicenti/botical-sub000/internal/store"
)

type fakeRunner struct {
	result *CompletionResult
	err    error
	got    CompletionRequest
}

func (f *fakeRunner) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	f.got = req
	return f.result, f.err
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunAgentSessionPersistsTranscript(t *testing.T) {
	s := newTestStore(t)
	runner := &fakeRunner{result: &CompletionResult{Content: "the answer", Cost: 0.01}}
	svc := NewService(s, runner, nil)
	ctx := context.Background()

	outcome, err := svc.RunAgentSession(ctx, engine.SessionRequest{
		ProjectID:    "proj-1",
		Agent:        "analyst",
		SystemPrompt: "be brief",
		Message:      "summarize",
		MaxMessages:  5,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, outcome.SessionID)
	assert.Equal(t, "the answer", outcome.Response)
	assert.Equal(t, "completed", outcome.Status)
	assert.Equal(t, 2, outcome.MessageCount)
	assert.Equal(t, 0.01, outcome.TotalCost)

	assert.Equal(t, "analyst", runner.got.Agent)
	assert.Equal(t, 5, runner.got.MaxMessages)

	sess, err := s.GetSession(ctx, outcome.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "completed", sess.Status)
	assert.Equal(t, 0.01, sess.TotalCost)

	msgs, err := s.ListMessages(ctx, outcome.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "summarize", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "the answer", msgs[1].Content)
}

func TestRunAgentSessionRunnerFailure(t *testing.T) {
	s := newTestStore(t)
	runner := &fakeRunner{err: errors.New("provider down")}
	svc := NewService(s, runner, nil)
	ctx := context.Background()

	_, err := svc.RunAgentSession(ctx, engine.SessionRequest{
		ProjectID: "proj-1",
		Message:   "hello",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
}

func TestRunAgentSessionEmptyMessage(t *testing.T) {
	svc := NewService(newTestStore(t), &fakeRunner{}, nil)

	_, err := svc.RunAgentSession(context.Background(), engine.SessionRequest{ProjectID: "p"})
	require.Error(t, err)
}

func TestRunAgentSessionNoRunner(t *testing.T) {
	svc := NewService(newTestStore(t), nil, nil)

	_, err := svc.RunAgentSession(context.Background(), engine.SessionRequest{
		ProjectID: "p",
		Message:   "hi",
	})
	require.Error(t, err)
}
