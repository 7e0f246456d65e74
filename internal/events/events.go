package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a ProgressEvent.
type Kind string

// Event kinds published by the session registry.
const (
	KindStatus   Kind = "status"
	KindBatch    Kind = "batch"
	KindProgress Kind = "progress"
	KindResult   Kind = "result"
)

// ProgressEvent describes one mutation of a session. Fields irrelevant to the
// event's Kind are left zero.
type ProgressEvent struct {
	SessionID uuid.UUID `json:"sessionId"`
	Kind      Kind      `json:"kind"`

	// KindStatus
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`

	// KindBatch
	CurrentBatch int `json:"currentBatch,omitempty"`
	TotalBatches int `json:"totalBatches,omitempty"`

	// KindProgress and KindResult
	PromptIndex *int   `json:"promptIndex,omitempty"`
	TaskState   string `json:"taskState,omitempty"`
	RetryCount  int    `json:"retryCount,omitempty"`
	Success     *bool  `json:"success,omitempty"`

	At time.Time `json:"at"`
}

// Terminal reports whether the event announces the end of its session.
func (e ProgressEvent) Terminal() bool {
	return e.Kind == KindStatus && (e.Status == "complete" || e.Status == "error")
}

// Publisher defines an interface for components that can emit progress events.
// Publish must not block the caller.
type Publisher interface {
	Publish(event ProgressEvent)
}

// Nop is a Publisher that discards every event.
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(ProgressEvent) {}
