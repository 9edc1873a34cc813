package blackboard

import (
	"errors"
	"fmt"
)

// Sentinel errors for the board's failure taxonomy. Callers match with
// errors.Is; every rejected operation wraps one of these with a
// human-readable reason so "already in desired state" and "rejected" are
// always distinguishable.
var (
	// ErrValidation marks a malformed task/team/expert specification,
	// rejected before any state mutation.
	ErrValidation = errors.New("validation error")

	// ErrInvalidTransition marks an illegal task-state change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNoAvailableExpert means the scheduler found no eligible candidate.
	ErrNoAvailableExpert = errors.New("no available expert")

	// ErrCyclicDependency marks a dependency graph cycle, caught at
	// task-creation time.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrInvalidWorkflow marks a structurally invalid workflow definition.
	ErrInvalidWorkflow = errors.New("invalid workflow definition")

	// ErrCapacityExceeded means a team, queue, or concurrency limit was hit.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrStaleState marks an optimistic-concurrency conflict: the record
	// changed under the writer between read and write.
	ErrStaleState = errors.New("stale state")

	// ErrNotFound means the referenced team, task, or expert does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationErrorf wraps ErrValidation with a formatted reason.
func ValidationErrorf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, a...))
}

// TransitionError describes a rejected status change with both states.
func TransitionError(from, to TaskStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// NoExpertError explains which role had no eligible candidate.
func NoExpertError(role ExpertRole) error {
	return fmt.Errorf("%w: no active %s instance with headroom", ErrNoAvailableExpert, role)
}

// CycleError renders the offending dependency cycle.
func CycleError(cycle []string) error {
	return fmt.Errorf("%w: %v", ErrCyclicDependency, cycle)
}

// CapacityError explains which limit was breached.
func CapacityError(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrCapacityExceeded, fmt.Sprintf(format, a...))
}

// IsNotFound reports whether err is the board's not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
