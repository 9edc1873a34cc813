// Package store defines the persistence contract for the BlackBoard core and
// composes its two implementations: a durable SQLite task store (source of
// truth) and a Redis state cache (fast, ephemeral mirror). The Hybrid
// coordinator in this package is the single place where the consistency rules
// between the two are enforced.
package store

import (
	"context"

	"github.com/mercatus/blackboard/pkg/blackboard"
)

// TaskStore is the durable repository. It owns canonical state; every write
// here must commit before any cache mirror is updated.
type TaskStore interface {
	CreateTeam(ctx context.Context, team *blackboard.Team) error
	GetTeam(ctx context.Context, teamID string) (*blackboard.Team, error)
	UpdateTeam(ctx context.Context, team *blackboard.Team) error
	ListTeams(ctx context.Context) ([]*blackboard.Team, error)

	CreateExpert(ctx context.Context, expert *blackboard.Expert) error
	GetExpert(ctx context.Context, expertID string) (*blackboard.Expert, error)
	UpdateExpert(ctx context.Context, expert *blackboard.Expert) error
	DeleteExpert(ctx context.Context, expertID string) error
	ListExperts(ctx context.Context, teamID string, role blackboard.ExpertRole) ([]*blackboard.Expert, error)

	// CreateTasks persists a batch atomically: either every task commits or
	// none does. Workflow instantiation and cycle rejection depend on this.
	CreateTasks(ctx context.Context, tasks []*blackboard.Task) error
	GetTask(ctx context.Context, taskID string) (*blackboard.Task, error)
	// UpdateTask enforces optimistic concurrency: the write succeeds only if
	// the stored revision still equals task.Revision, and increments it.
	// Returns blackboard.ErrStaleState on conflict.
	UpdateTask(ctx context.Context, task *blackboard.Task) error
	ListTasks(ctx context.Context, teamID string) ([]*blackboard.Task, error)

	// AppendAssignment records an assignment in the history. Re-appending an
	// existing ID updates its completion and supersession fields in place.
	AppendAssignment(ctx context.Context, a *blackboard.TaskAssignment) error
	ListAssignments(ctx context.Context, taskID string) ([]*blackboard.TaskAssignment, error)

	AppendEvent(ctx context.Context, e *blackboard.Event) error
	ListEvents(ctx context.Context, taskID string) ([]*blackboard.Event, error)

	AppendComment(ctx context.Context, c *blackboard.Comment) error
	ListComments(ctx context.Context, taskID string) ([]*blackboard.Comment, error)
}

// StateCache is the ephemeral mirror. Entries carry a bounded TTL and may
// vanish at any time; a miss is never an error condition for callers of the
// Hybrid coordinator.
type StateCache interface {
	SetTask(ctx context.Context, task *blackboard.Task) error
	GetTask(ctx context.Context, teamID, taskID string) (*blackboard.Task, error)
	InvalidateTask(ctx context.Context, teamID, taskID string) error

	SetExpert(ctx context.Context, expert *blackboard.Expert) error
	GetExpert(ctx context.Context, teamID, expertID string) (*blackboard.Expert, error)
	InvalidateExpert(ctx context.Context, teamID, expertID string) error

	SetTeam(ctx context.Context, team *blackboard.Team) error
	GetTeam(ctx context.Context, teamID string) (*blackboard.Team, error)

	Ping(ctx context.Context) error
}
