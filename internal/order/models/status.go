package models

import (
	"strings"

	dErrors "homechef/pkg/domain-errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusShipping  Status = "shipping"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// statusDelivered is accepted on input as a synonym for completed.
const statusDelivered = "delivered"

var transitions = map[Status][]Status{
	StatusPending:  {StatusShipping, StatusCompleted, StatusCancelled},
	StatusShipping: {StatusCompleted},
}

// ParseStatus normalises user input to a canonical status.
func ParseStatus(raw string) (Status, error) {
	switch s := strings.ToLower(strings.TrimSpace(raw)); s {
	case string(StatusPending), string(StatusShipping), string(StatusCompleted), string(StatusCancelled):
		return Status(s), nil
	case statusDelivered:
		return StatusCompleted, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown order status")
	}
}

func (s Status) String() string { return string(s) }

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Next lists the statuses reachable from s.
func (s Status) Next() []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}
