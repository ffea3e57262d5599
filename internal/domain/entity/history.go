package entity

import "time"

// TransitionRecord is the audit trail of one applied workflow transition
type TransitionRecord struct {
	ID            int64     `json:"id"`
	RequestID     int64     `json:"request_id"`
	Actor         string    `json:"actor"`
	Action        string    `json:"action"`
	PreviousState string    `json:"previous_state"`
	NewState      string    `json:"new_state"`
	Comments      string    `json:"comments,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
