package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types produced by the core
const (
	EventStatusChange       = "status_change"
	EventRoleChange         = "role_change"
	EventTeamRoleChange     = "team_role_change"
	EventAssociationChange  = "association_change"
	EventProfileUpdate      = "profile_update"
	EventUserUpdate         = "user_update"
	EventInvitationAccepted = "invitation_accepted"
	EventEmailChanged       = "email_change"
	EventEmailChangeDenied  = "email_change_rejected"
	EventPlanChanged        = "plan_change"
	EventAnnouncement       = "announcement_published"
)

// Recipient addresses a notification. UserID is zero for addresses that do
// not belong to a user, such as the new address in an email change.
type Recipient struct {
	UserID int64  `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Message is a notification in flight between a Sink and the Worker
type Message struct {
	ID         string         `json:"id"`
	Recipient  Recipient      `json:"recipient"`
	EventType  string         `json:"event_type"`
	Payload    map[string]any `json:"payload"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// NewMessage stamps a message with an ID and enqueue time
func NewMessage(to Recipient, eventType string, payload map[string]any) Message {
	if payload == nil {
		payload = map[string]any{}
	}
	return Message{
		ID:         uuid.NewString(),
		Recipient:  to,
		EventType:  eventType,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Sink accepts notifications for asynchronous delivery. Implementations
// return once the message is enqueued; delivery is at least once and never
// retried by the caller.
type Sink interface {
	Notify(ctx context.Context, to Recipient, eventType string, payload map[string]any) error
}

// MemorySink keeps notifications in memory
type MemorySink struct {
	mu       sync.Mutex
	messages []Message
}

// Notify implements Sink
func (s *MemorySink) Notify(ctx context.Context, to Recipient, eventType string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, NewMessage(to, eventType, payload))
	return nil
}

// Messages returns a copy of the enqueued messages
func (s *MemorySink) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Reset drops all messages
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// NopSink discards notifications
type NopSink struct{}

// Notify implements Sink
func (NopSink) Notify(context.Context, Recipient, string, map[string]any) error { return nil }
