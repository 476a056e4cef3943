package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ericvicenti/botical-sub000/internal/streaming"
	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

// StreamNotifier forwards workflow notifications and approval requests
// from the event hub to connected MCP clients as push notifications.
type StreamNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
	hub       streaming.EventHub
	logger    *slog.Logger
}

// NewStreamNotifier creates a notifier bridging the hub to MCP push.
func NewStreamNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry, hub streaming.EventHub, logger *slog.Logger) *StreamNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamNotifier{mcpServer: mcpServer, sessions: sessions, hub: hub, logger: logger}
}

// Run subscribes to notify and approval events and forwards them until
// ctx is cancelled.
func (n *StreamNotifier) Run(ctx context.Context) error {
	events, cancel, err := n.hub.Subscribe(ctx, streaming.EventFilter{
		EventTypes: []string{schema.EventNotify, schema.EventApprovalRequired},
	})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if pushErr := n.push(ev); pushErr != nil {
				n.logger.Warn("failed to push notification",
					slog.String("event_type", ev.EventType),
					slog.String("error", pushErr.Error()),
				)
			}
		}
	}
}

// push sends one event to the session registered for its project.
// Best-effort: returns nil if no client is connected.
func (n *StreamNotifier) push(ev streaming.StreamEvent) error {
	sessionID, ok := n.sessions.SessionFor(ev.ProjectID)
	if !ok {
		return nil // project not connected, best-effort
	}

	payload := map[string]any{
		"eventType":   ev.EventType,
		"executionId": ev.ExecutionID,
		"stepId":      ev.StepID,
		"payload":     ev.Payload,
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send — not an error.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}
