package session

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imagebatch/internal/task"
)

// Status is the lifecycle position of a session.
type Status string

// Valid session statuses
const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Terminal reports whether the session has finished.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusStarting, StatusProcessing, StatusComplete, StatusError:
		return true
	}
	return false
}

// canTransition encodes the forward-only status graph.
func canTransition(from, to Status) bool {
	switch from {
	case StatusStarting:
		return to == StatusProcessing || to == StatusError
	case StatusProcessing:
		return to == StatusComplete || to == StatusError
	}
	return false
}

// Common session errors
var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrInvalidTransition     = errors.New("invalid session status transition")
	ErrPromptIndexOutOfRange = errors.New("prompt index out of range")
	ErrEmptyPrompts          = errors.New("session requires at least one prompt")
)

// Progress is the latest reported state of one prompt's task.
type Progress struct {
	Status     task.State `json:"status"`
	RetryCount int        `json:"retryCount"`
}

// Snapshot is a deep, immutable copy of a session.
type Snapshot struct {
	ID           uuid.UUID        `json:"id"`
	Status       Status           `json:"status"`
	Prompts      []string         `json:"prompts"`
	BatchSize    int              `json:"batchSize"`
	Progress     map[int]Progress `json:"progress"`
	Results      []task.Result    `json:"results"`
	CurrentBatch int              `json:"currentBatch"`
	TotalBatches int              `json:"totalBatches"`
	Error        string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	FinishedAt   *time.Time       `json:"finishedAt,omitempty"`
}

// ImageSet returns the successful results ordered by prompt index. The set is
// only defined once the session is complete; before that it is nil.
func (s Snapshot) ImageSet() []task.Result {
	if s.Status != StatusComplete {
		return nil
	}
	var out []task.Result
	for _, r := range s.Results {
		if r.Success && r.Image != nil {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PromptIndex < out[j].PromptIndex })
	return out
}

// Counts tallies results by outcome.
func (s Snapshot) Counts() (succeeded, failed int) {
	for _, r := range s.Results {
		if r.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// session is the mutable record behind a Snapshot. Access is guarded by the
// owning entry's mutex.
type session struct {
	id           uuid.UUID
	status       Status
	prompts      []string
	batchSize    int
	progress     map[int]Progress
	results      []task.Result
	seen         map[int]struct{}
	currentBatch int
	totalBatches int
	err          string
	createdAt    time.Time
	updatedAt    time.Time
	finishedAt   *time.Time
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		ID:           s.id,
		Status:       s.status,
		Prompts:      append([]string(nil), s.prompts...),
		BatchSize:    s.batchSize,
		Progress:     make(map[int]Progress, len(s.progress)),
		Results:      make([]task.Result, len(s.results)),
		CurrentBatch: s.currentBatch,
		TotalBatches: s.totalBatches,
		Error:        s.err,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
	for idx, p := range s.progress {
		snap.Progress[idx] = p
	}
	for i, r := range s.results {
		if r.Image != nil {
			ref := *r.Image
			r.Image = &ref
		}
		snap.Results[i] = r
	}
	if s.finishedAt != nil {
		at := *s.finishedAt
		snap.FinishedAt = &at
	}
	return snap
}
