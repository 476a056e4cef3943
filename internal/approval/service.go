package approval

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ericvicenti/botical-sub000/internal/engine"
	"github.com/ericvicenti/botical-sub000/internal/store"
	"github.com/ericvicenti/botical-sub000/internal/streaming"
	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

// DefaultTimeoutSeconds applies when an approval step sets no timeout.
const DefaultTimeoutSeconds = 24 * 60 * 60

// Service creates and resolves approval requests. It implements
// engine.ApprovalService; approval steps never block a workflow run, the
// human response arrives through Respond.
type Service struct {
	store  store.Store
	hub    streaming.EventHub
	logger *slog.Logger
}

// NewService creates an approval service.
func NewService(s store.Store, hub streaming.EventHub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, hub: hub, logger: logger}
}

// Create persists a new approval request and broadcasts it. When the step
// names no approvers, all project members qualify. With autoApprove set
// the request resolves immediately without human involvement.
func (s *Service) Create(ctx context.Context, params engine.ApprovalParams) (*engine.ApprovalTicket, error) {
	approvers := params.Approvers
	if len(approvers) == 0 {
		members, err := s.store.ListProjectMembers(ctx, params.ProjectID)
		if err != nil {
			return nil, err
		}
		approvers = members
	}

	timeout := params.TimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultTimeoutSeconds
	}

	req := &store.ApprovalRequest{
		ID:             uuid.NewString(),
		ExecutionID:    params.ExecutionID,
		StepID:         params.StepID,
		ProjectID:      params.ProjectID,
		Message:        params.Message,
		Approvers:      approvers,
		TimeoutSeconds: timeout,
		AutoApprove:    params.AutoApprove,
		Status:         schema.ApprovalStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateApprovalRequest(ctx, req); err != nil {
		return nil, err
	}

	status := schema.ApprovalStatusPending
	if params.AutoApprove {
		if err := s.store.RespondApprovalRequest(ctx, req.ID, "system", true); err != nil {
			return nil, err
		}
		status = schema.ApprovalStatusApproved
	} else {
		err := s.hub.Publish(ctx, streaming.StreamEvent{
			ExecutionID: params.ExecutionID,
			ProjectID:   params.ProjectID,
			StepID:      params.StepID,
			EventType:   schema.EventApprovalRequired,
			Payload: map[string]any{
				"approvalId": req.ID,
				"message":    req.Message,
				"approvers":  approvers,
				"timeout":    timeout,
			},
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "broadcast approval request", "approval_id", req.ID, "error", err)
		}
	}

	return &engine.ApprovalTicket{
		ApprovalID:     req.ID,
		Status:         string(status),
		Approvers:      approvers,
		TimeoutSeconds: timeout,
	}, nil
}

// Respond records a human decision on a pending request. The responder
// must be one of the request's approvers, and an overdue request can no
// longer be responded to.
func (s *Service) Respond(ctx context.Context, approvalID, responder string, approve bool) (*store.ApprovalRequest, error) {
	req, err := s.store.GetApprovalRequest(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	if !approverAllowed(req.Approvers, responder) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"%q is not an approver for request %s", responder, approvalID)
	}
	if Expired(req, time.Now().UTC()) {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"approval request %s has expired", approvalID)
	}

	if err := s.store.RespondApprovalRequest(ctx, approvalID, responder, approve); err != nil {
		return nil, err
	}
	return s.store.GetApprovalRequest(ctx, approvalID)
}

// Get returns a request by id.
func (s *Service) Get(ctx context.Context, approvalID string) (*store.ApprovalRequest, error) {
	return s.store.GetApprovalRequest(ctx, approvalID)
}

// ListPending returns pending requests for a project.
func (s *Service) ListPending(ctx context.Context, projectID string) ([]*store.ApprovalRequest, error) {
	pending := schema.ApprovalStatusPending
	return s.store.ListApprovalRequests(ctx, store.ApprovalFilter{
		ProjectID: projectID,
		Status:    &pending,
	})
}

// Expired reports whether a still-pending request has outlived its
// timeout. Expiry is computed, not swept: the row keeps its pending
// status but can no longer be responded to.
func Expired(req *store.ApprovalRequest, now time.Time) bool {
	if req.Status != schema.ApprovalStatusPending || req.TimeoutSeconds <= 0 {
		return false
	}
	return now.After(req.CreatedAt.Add(time.Duration(req.TimeoutSeconds) * time.Second))
}

func approverAllowed(approvers []string, responder string) bool {
	if len(approvers) == 0 {
		return true
	}
	for _, a := range approvers {
		if a == responder {
			return true
		}
	}
	return false
}

var _ engine.ApprovalService = (*Service)(nil)
