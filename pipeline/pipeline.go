package pipeline

import "errors"

// Common errors.
var (
	// ErrNoStages indicates an empty stage list.
	ErrNoStages = errors.New("pipeline has no stages")

	// ErrDuplicateStage indicates a stage label appears more than once.
	ErrDuplicateStage = errors.New("duplicate pipeline stage")

	// ErrEmptyStage indicates a blank stage label.
	ErrEmptyStage = errors.New("empty pipeline stage label")

	// ErrUnknownStage indicates a stage not present in the configured list.
	ErrUnknownStage = errors.New("unknown pipeline stage")

	// ErrInvalidTransition indicates the task status does not permit the outcome.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status represents the current state of a task.
type Status string

const (
	// StatusPending indicates the task is waiting to be claimed.
	StatusPending Status = "pending"

	// StatusClaimed indicates the task has been claimed by a rater.
	StatusClaimed Status = "claimed"

	// StatusInReview indicates a submitted response is awaiting review.
	StatusInReview Status = "in_review"

	// StatusDone indicates the task has completed every configured stage.
	StatusDone Status = "done"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if the status is the terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusDone
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusClaimed, StatusInReview, StatusDone:
		return true
	}
	return false
}

// Stage is a named step in a project's annotation workflow (e.g. "L1").
type Stage string

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// Stages is an ordered list of pipeline stages. A task enters at the first
// stage and only ever advances toward the last.
type Stages []Stage

// Validate checks that the stage list is non-empty with unique,
// non-blank labels.
func (s Stages) Validate() error {
	if len(s) == 0 {
		return ErrNoStages
	}
	seen := make(map[Stage]struct{}, len(s))
	for _, stage := range s {
		if stage == "" {
			return ErrEmptyStage
		}
		if _, dup := seen[stage]; dup {
			return ErrDuplicateStage
		}
		seen[stage] = struct{}{}
	}
	return nil
}

// First returns the entry stage. Panics on an empty list; callers validate
// stage lists at configuration time.
func (s Stages) First() Stage {
	return s[0]
}

// Index returns the position of stage in the list, or -1 if absent.
func (s Stages) Index(stage Stage) int {
	for i, st := range s {
		if st == stage {
			return i
		}
	}
	return -1
}

// Contains reports whether stage is part of the list.
func (s Stages) Contains(stage Stage) bool {
	return s.Index(stage) >= 0
}

// IsLast reports whether stage is the final configured stage.
func (s Stages) IsLast(stage Stage) bool {
	i := s.Index(stage)
	return i >= 0 && i == len(s)-1
}

// After returns the stage following the given one. ok is false when the
// stage is unknown or already last.
func (s Stages) After(stage Stage) (next Stage, ok bool) {
	i := s.Index(stage)
	if i < 0 || i >= len(s)-1 {
		return "", false
	}
	return s[i+1], true
}
