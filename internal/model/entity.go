package model

import (
	"time"

	"gorm.io/datatypes"
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusClaimed  RequestStatus = "claimed"
	RequestStatusAnswered RequestStatus = "answered"
	RequestStatusClosed   RequestStatus = "closed"
)

type Routing string

const (
	RoutingHuman     Routing = "human"
	RoutingAutomated Routing = "automated"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type ResponderType string

const (
	ResponderHuman     ResponderType = "human"
	ResponderAutomated ResponderType = "automated"
)

// Request is a unit of submitted content awaiting exactly one response.
// ClaimedBy, ClaimedAt and ResponseDeadline are set if and only if Status is claimed.
type Request struct {
	ID             string                      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ConversationID *string                     `gorm:"type:varchar(36);index" json:"conversation_id,omitempty"`
	Content        string                      `gorm:"type:text;not null" json:"content"`
	RequesterID    string                      `gorm:"type:varchar(128);index;not null" json:"requester_id"`
	Tags           datatypes.JSONSlice[string] `json:"tags"`
	Priority       Priority                    `gorm:"type:varchar(16);not null" json:"priority"`
	CulturalTag    string                      `gorm:"type:varchar(64)" json:"cultural_tag,omitempty"`
	Routing        Routing                     `gorm:"type:varchar(16);not null" json:"routing"`
	Status         RequestStatus               `gorm:"type:varchar(16);not null;index:idx_requests_status_created,priority:1;index:idx_requests_status_deadline,priority:1" json:"status"`

	ClaimedBy        *string    `gorm:"type:varchar(128)" json:"claimed_by,omitempty"`
	ClaimedAt        *time.Time `json:"claimed_at,omitempty"`
	ResponseDeadline *time.Time `gorm:"index:idx_requests_status_deadline,priority:2" json:"response_deadline,omitempty"`
	ResponseCount    int        `gorm:"not null;default:0" json:"response_count"`
	Version          int64      `gorm:"not null;default:1" json:"version"`

	CreatedAt time.Time  `gorm:"index:idx_requests_status_created,priority:2" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`

	Responses []Response `gorm:"foreignKey:RequestID" json:"responses,omitempty"`
}

// LeaseConsistent reports whether the claim fields agree with Status.
func (r *Request) LeaseConsistent() bool {
	claimed := r.Status == RequestStatusClaimed
	return claimed == (r.ClaimedBy != nil) && claimed == (r.ResponseDeadline != nil)
}

// Response is one answer to a request.
type Response struct {
	ID            string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RequestID     string         `gorm:"type:varchar(36);index;not null" json:"request_id"`
	ResponderID   string         `gorm:"type:varchar(128);not null" json:"responder_id"`
	ResponderType ResponderType  `gorm:"type:varchar(16);not null" json:"responder_type"`
	Content       string         `gorm:"type:text;not null" json:"content"`
	Feedback      datatypes.JSON `json:"feedback,omitempty"`
	FeedbackAt    *time.Time     `json:"feedback_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

type ConversationStatus string

const (
	ConversationStatusUnclaimed ConversationStatus = "unclaimed"
	ConversationStatusClaimed   ConversationStatus = "claimed"
	ConversationStatusClosed    ConversationStatus = "closed"
)

// Conversation groups requests of one multi-turn exchange. Its ownership
// follows request claim semantics without a lease deadline.
type Conversation struct {
	ID          string             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RequesterID string             `gorm:"type:varchar(128);index;not null" json:"requester_id"`
	CulturalTag string             `gorm:"type:varchar(64)" json:"cultural_tag,omitempty"`
	Status      ConversationStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	CounselorID *string            `gorm:"type:varchar(128)" json:"counselor_id,omitempty"`
	ClaimedAt   *time.Time         `json:"claimed_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	ClosedAt    *time.Time         `json:"closed_at,omitempty"`
}
