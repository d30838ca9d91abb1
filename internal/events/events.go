package events

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Event types published on the session events topic. The notification and
// email system consumes these; the engine never reads them back.
const (
	TypeSessionCreated   = "session.created"
	TypeSessionScheduled = "session.scheduled"
	TypeSessionCompleted = "session.completed"
	TypeSessionCancelled = "session.cancelled"
	TypeSessionFeedback  = "session.feedback"
	TypeExpertApplied    = "expert.applied"
	TypeExpertApproved   = "expert.approved"
	TypeExpertRejected   = "expert.rejected"
	TypeExpertSuspended  = "expert.suspended"
)

type Event struct {
	Type       string          `json:"type"`
	SessionID  string          `json:"session_id,omitempty"`
	ExpertID   string          `json:"expert_id,omitempty"`
	BuyerID    string          `json:"buyer_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Key is the Kafka partition key: session-scoped events partition by
// session, vetting events by expert.
func (e Event) Key() string {
	if e.SessionID != "" {
		return e.SessionID
	}

	return e.ExpertID
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
