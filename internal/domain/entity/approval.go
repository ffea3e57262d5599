package entity

import "time"

// Approval is one manager decision on a request. At most one exists per level.
type Approval struct {
	ID        int64     `json:"id"`
	RequestID int64     `json:"request_id"`
	Approver  string    `json:"approver"`
	Level     int       `json:"level"`
	Approved  bool      `json:"approved"`
	Comments  string    `json:"comments,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerSnapshot summarises the decisions recorded for a request
type LedgerSnapshot struct {
	Level1Decided  bool
	Level1Approved bool
	Level2Decided  bool
	Level2Approved bool
	Rejected       bool
}

// Decided reports whether a decision exists at level
func (s LedgerSnapshot) Decided(level int) bool {
	switch level {
	case LevelOne:
		return s.Level1Decided
	case LevelTwo:
		return s.Level2Decided
	}
	return false
}

// NewLedgerSnapshot folds approvals into a snapshot
func NewLedgerSnapshot(approvals []*Approval) LedgerSnapshot {
	var s LedgerSnapshot
	for _, a := range approvals {
		switch a.Level {
		case LevelOne:
			s.Level1Decided = true
			s.Level1Approved = a.Approved
		case LevelTwo:
			s.Level2Decided = true
			s.Level2Approved = a.Approved
		}
		if !a.Approved {
			s.Rejected = true
		}
	}
	return s
}
