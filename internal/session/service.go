package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ericvicenti/botical-sub000/internal/engine"
	"github.com/ericvicenti/botical-sub000/internal/store"
	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

// Turn is one message in a completion request transcript.
type Turn struct {
	Role    string `json:"role"` // user | assistant | system
	Content string `json:"content"`
}

// CompletionRequest asks an agent runner for a model completion.
type CompletionRequest struct {
	Agent        string `json:"agent,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	ProviderID   string `json:"provider_id,omitempty"`
	ModelID      string `json:"model_id,omitempty"`
	Turns        []Turn `json:"turns"`
	MaxMessages  int    `json:"max_messages,omitempty"`
}

// CompletionResult is the runner's answer plus accounting.
type CompletionResult struct {
	Content      string  `json:"content"`
	MessageCount int     `json:"message_count"`
	Cost         float64 `json:"cost"`
}

// AgentRunner produces agent completions. Implementations wrap a model
// provider; the service owns persistence around the call.
type AgentRunner interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

// Service runs agent sessions for session steps and persists the
// transcript. It implements engine.SessionService.
type Service struct {
	store  store.Store
	runner AgentRunner
	logger *slog.Logger
}

// NewService creates a session service.
func NewService(s store.Store, runner AgentRunner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, runner: runner, logger: logger}
}

// RunAgentSession creates a session record, runs the agent to completion
// and persists the transcript. The session is parented to the invoking
// session when one exists.
func (s *Service) RunAgentSession(ctx context.Context, req engine.SessionRequest) (*engine.SessionOutcome, error) {
	if s.runner == nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "no agent runner configured")
	}
	if req.Message == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "session message is empty")
	}

	sessionID := uuid.NewString()
	now := time.Now().UTC()
	sess := &store.Session{
		ID:           sessionID,
		ProjectID:    req.ProjectID,
		ParentID:     req.ParentSessionID,
		Agent:        req.Agent,
		SystemPrompt: req.SystemPrompt,
		ProviderID:   req.ProviderID,
		ModelID:      req.ModelID,
		Status:       "running",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	if err := s.store.AppendMessage(ctx, &store.Message{
		SessionID: sessionID,
		Role:      "user",
		Content:   req.Message,
	}); err != nil {
		return nil, err
	}

	turns := []Turn{{Role: "user", Content: req.Message}}
	result, err := s.runner.Complete(ctx, CompletionRequest{
		Agent:        req.Agent,
		SystemPrompt: req.SystemPrompt,
		ProviderID:   req.ProviderID,
		ModelID:      req.ModelID,
		Turns:        turns,
		MaxMessages:  req.MaxMessages,
	})
	if err != nil {
		if ferr := s.store.FinishSession(ctx, sessionID, "failed", 0); ferr != nil {
			s.logger.ErrorContext(ctx, "finish failed session", "session_id", sessionID, "error", ferr)
		}
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "agent session failed: %s", err.Error()).WithCause(err)
	}

	if err := s.store.AppendMessage(ctx, &store.Message{
		SessionID: sessionID,
		Role:      "assistant",
		Content:   result.Content,
	}); err != nil {
		return nil, err
	}

	if err := s.store.FinishSession(ctx, sessionID, "completed", result.Cost); err != nil {
		return nil, err
	}

	messageCount := result.MessageCount
	if messageCount <= 0 {
		messageCount = 2 // user turn + assistant turn
	}

	return &engine.SessionOutcome{
		SessionID:    sessionID,
		MessageCount: messageCount,
		TotalCost:    result.Cost,
		Response:     result.Content,
		Status:       "completed",
	}, nil
}

var _ engine.SessionService = (*Service)(nil)
