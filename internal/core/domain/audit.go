package domain

import "time"

// Decision outcomes recorded in the audit trail.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
	DecisionError = "error"
)

// AuthzEvent is one authorization decision as recorded in the audit trail.
type AuthzEvent struct {
	ActorID      int64     `json:"actor_id,omitempty"`
	ActorEmail   string    `json:"actor_email,omitempty"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type,omitempty"`
	Decision     string    `json:"decision"`
	Reason       string    `json:"reason"`
	RequestID    string    `json:"request_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
