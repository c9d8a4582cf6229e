package domain

import "fmt"

// Status is the lifecycle state of a payment request.
// pending is the only non-terminal value; every other status is final.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusDeclined  Status = "declined"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusRejected, StatusDeclined,
		StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether s is a known final status.
func (s Status) Terminal() bool {
	return s.Valid() && s != StatusPending
}

// ParseStatus validates a status string received from the wire.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown payment request status %q", v)
	}
	return s, nil
}
