package task

import (
	"errors"

	"github.com/google/uuid"
	"github.com/phrazzld/imagebatch/internal/imagestore"
)

// State is a step in one prompt's attempt lifecycle.
type State string

// Possible task states. An attempt walks pending through downloading_result;
// the task then settles in succeeded or dismissed, passing through retrying
// between failed attempts.
const (
	StatePending           State = "pending"
	StatePreparing         State = "preparing"
	StateSubmittingPrompt  State = "submitting_prompt"
	StateAwaitingResult    State = "awaiting_result"
	StateDownloadingResult State = "downloading_result"
	StateSucceeded         State = "succeeded"
	StateRetrying          State = "retrying"
	StateDismissed         State = "dismissed"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateDismissed
}

// Common errors
var (
	ErrNilEngine     = errors.New("engine cannot be nil")
	ErrNilImageStore = errors.New("image store cannot be nil")
	ErrNilLogger     = errors.New("logger cannot be nil")
)

// ProgressFunc receives every state transition of a task. It is called
// concurrently from many tasks and must be safe for that.
type ProgressFunc func(promptIndex int, state State, retryCount int)

// Spec identifies the prompt a task works on.
type Spec struct {
	SessionID   uuid.UUID
	PromptIndex int
	Prompt      string
}

// Result is the outcome of one task, successful or not.
type Result struct {
	PromptIndex int             `json:"promptIndex"`
	Prompt      string          `json:"prompt"`
	Success     bool            `json:"success"`
	Image       *imagestore.Ref `json:"image,omitempty"`
	Attempts    int             `json:"attempts"`
	Error       string          `json:"error,omitempty"`
}
