package domain

import "time"

// Op names a committed mutation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

func (o Op) Valid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Change describes one committed mutation of the store. Event holds the
// state after the change, or the removed event for deletes.
type Change struct {
	RequestID string
	Op        Op
	Event     Event
	At        time.Time
}
