package model

import "time"

type EventType string

const (
	EventRequestCreated  EventType = "request.created"
	EventRequestClaimed  EventType = "request.claimed"
	EventRequestReleased EventType = "request.released"
	EventRequestExpired  EventType = "request.expired"
	EventRequestAnswered EventType = "request.answered"
	EventRequestClosed   EventType = "request.closed"
	// EventRequestSnapshot replays the current state to a new subscriber.
	EventRequestSnapshot EventType = "request.snapshot"

	EventConversationCreated  EventType = "conversation.created"
	EventConversationClaimed  EventType = "conversation.claimed"
	EventConversationReleased EventType = "conversation.released"
	EventConversationClosed   EventType = "conversation.closed"
)

// Event is a committed state transition. Request carries the snapshot taken
// in the same transaction as the transition.
type Event struct {
	Type         EventType     `json:"event"`
	RequestID    string        `json:"request_id,omitempty"`
	Version      int64         `json:"version,omitempty"`
	At           time.Time     `json:"at"`
	Request      *Request      `json:"request,omitempty"`
	Conversation *Conversation `json:"conversation,omitempty"`
}

// RequestEvent builds an Event for a request snapshot.
func RequestEvent(t EventType, r *Request, at time.Time) Event {
	return Event{Type: t, RequestID: r.ID, Version: r.Version, At: at, Request: r}
}
