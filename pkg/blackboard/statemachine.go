package blackboard

// Task state machine:
//
//	PENDING -> ASSIGNED -> IN_PROGRESS -> {COMPLETED | FAILED}
//	IN_PROGRESS -> PENDING   needs-revision, bounded by retry count
//	FAILED -> ASSIGNED       reschedule, increments retry count
//	any -> CANCELLED         except from COMPLETED
//
// COMPLETED and CANCELLED are terminal.

var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusAssigned, TaskStatusCancelled},
	TaskStatusAssigned:   {TaskStatusInProgress, TaskStatusCancelled},
	TaskStatusInProgress: {TaskStatusCompleted, TaskStatusFailed, TaskStatusPending, TaskStatusCancelled},
	TaskStatusFailed:     {TaskStatusAssigned, TaskStatusCancelled},
	TaskStatusCompleted:  {},
	TaskStatusCancelled:  {},
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a TransitionError when from -> to is not permitted.
func CheckTransition(from, to TaskStatus) error {
	if !CanTransition(from, to) {
		return TransitionError(from, to)
	}
	return nil
}
