package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Interaction is one chat exchange as seen by the proxy.
type Interaction struct {
	ID        string
	CreatedAt time.Time
	Variant   string
	Model     string
	Message   string
	Reply     string
	Status    string
	Error     string // upstream failure detail, empty on success
	Duration  time.Duration
}
