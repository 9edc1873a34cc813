package depgraph

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercatus/blackboard/pkg/blackboard"
)

func newTask(title string, mins int) *blackboard.Task {
	return &blackboard.Task{
		ID:            uuid.NewString(),
		TeamID:        "team-1",
		Title:         title,
		Description:   title,
		Goal:          title,
		Status:        blackboard.TaskStatusPending,
		Priority:      blackboard.PriorityMedium,
		RequiredRole:  blackboard.RoleExecutor,
		EstimatedMins: mins,
		CreatedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func dependOn(t *blackboard.Task, kind blackboard.DependencyKind, prereqs ...*blackboard.Task) {
	for _, p := range prereqs {
		t.Dependencies = append(t.Dependencies, blackboard.TaskDependency{TaskID: p.ID, Kind: kind})
	}
}

func TestIsReady(t *testing.T) {
	prereq := newTask("research", 60)
	soft := newTask("brand refresh", 30)
	task := newTask("write post", 120)
	dependOn(task, blackboard.DependencyHard, prereq)
	dependOn(task, blackboard.DependencySoft, soft)

	g := New([]*blackboard.Task{prereq, soft, task})
	assert.False(t, g.IsReady(task), "incomplete hard dependency blocks")

	prereq.Status = blackboard.TaskStatusCompleted
	g = New([]*blackboard.Task{prereq, soft, task})
	assert.True(t, g.IsReady(task), "soft dependency never blocks")
}

func TestIsReadyUnknownDependencyBlocks(t *testing.T) {
	task := newTask("write post", 120)
	task.Dependencies = []blackboard.TaskDependency{
		{TaskID: uuid.NewString(), Kind: blackboard.DependencyHard},
	}
	g := New([]*blackboard.Task{task})
	assert.False(t, g.IsReady(task))
}

func TestReadyTasksOrdering(t *testing.T) {
	done := newTask("research", 60)
	done.Status = blackboard.TaskStatusCompleted

	blocked := newTask("review", 90)
	pendingPrereq := newTask("draft", 120)
	dependOn(blocked, blackboard.DependencyHard, pendingPrereq)

	urgent := newTask("hotfix copy", 30)
	urgent.Priority = blackboard.PriorityUrgent
	dependOn(urgent, blackboard.DependencyHard, done)

	g := New([]*blackboard.Task{done, blocked, pendingPrereq, urgent})
	ready := g.ReadyTasks()
	require.Len(t, ready, 2)
	assert.Equal(t, urgent.ID, ready[0].ID, "urgent sorts first")
	assert.Equal(t, pendingPrereq.ID, ready[1].ID)
}

func TestDependents(t *testing.T) {
	prereq := newTask("research", 60)
	a := newTask("draft", 120)
	b := newTask("summary", 45)
	dependOn(a, blackboard.DependencyHard, prereq)
	dependOn(b, blackboard.DependencySoft, prereq)

	g := New([]*blackboard.Task{prereq, a, b})
	deps := g.Dependents(prereq.ID)
	require.Len(t, deps, 1, "soft dependents are not blocked")
	assert.Equal(t, a.ID, deps[0].ID)
}

func TestCheckAcyclic(t *testing.T) {
	t.Run("chain accepted", func(t *testing.T) {
		a := newTask("a", 10)
		b := newTask("b", 10)
		c := newTask("c", 10)
		dependOn(b, blackboard.DependencyHard, a)
		dependOn(c, blackboard.DependencyHard, b)
		assert.NoError(t, CheckAcyclic(nil, []*blackboard.Task{a, b, c}))
	})

	t.Run("direct cycle rejected", func(t *testing.T) {
		a := newTask("a", 10)
		b := newTask("b", 10)
		dependOn(a, blackboard.DependencyHard, b)
		dependOn(b, blackboard.DependencyHard, a)

		err := CheckAcyclic(nil, []*blackboard.Task{a, b})
		require.Error(t, err)
		assert.True(t, errors.Is(err, blackboard.ErrCyclicDependency))
		assert.Contains(t, err.Error(), a.ID)
		assert.Contains(t, err.Error(), b.ID)
	})

	t.Run("cycle across existing and incoming rejected", func(t *testing.T) {
		existing := newTask("existing", 10)
		incoming := newTask("incoming", 10)
		dependOn(existing, blackboard.DependencyHard, incoming)
		dependOn(incoming, blackboard.DependencyHard, existing)

		err := CheckAcyclic([]*blackboard.Task{existing}, []*blackboard.Task{incoming})
		assert.True(t, errors.Is(err, blackboard.ErrCyclicDependency))
	})

	t.Run("soft cycle accepted", func(t *testing.T) {
		a := newTask("a", 10)
		b := newTask("b", 10)
		dependOn(a, blackboard.DependencySoft, b)
		dependOn(b, blackboard.DependencySoft, a)
		assert.NoError(t, CheckAcyclic(nil, []*blackboard.Task{a, b}))
	})

	t.Run("dangling reference accepted", func(t *testing.T) {
		a := newTask("a", 10)
		a.Dependencies = []blackboard.TaskDependency{
			{TaskID: uuid.NewString(), Kind: blackboard.DependencyHard},
		}
		assert.NoError(t, CheckAcyclic(nil, []*blackboard.Task{a}))
	})
}

func TestCriticalPath(t *testing.T) {
	research := newTask("research", 60)
	draft := newTask("draft", 120)
	review := newTask("review", 90)
	side := newTask("side quest", 30)
	dependOn(draft, blackboard.DependencyHard, research)
	dependOn(review, blackboard.DependencyHard, draft)
	dependOn(side, blackboard.DependencyHard, research)

	g := New([]*blackboard.Task{research, draft, review, side})
	chain, total := g.CriticalPath()
	require.Len(t, chain, 3)
	assert.Equal(t, research.ID, chain[0].ID)
	assert.Equal(t, draft.ID, chain[1].ID)
	assert.Equal(t, review.ID, chain[2].ID)
	assert.Equal(t, 270, total)
}

func TestCriticalPathSkipsCompletedWork(t *testing.T) {
	research := newTask("research", 60)
	research.Status = blackboard.TaskStatusCompleted
	draft := newTask("draft", 120)
	dependOn(draft, blackboard.DependencyHard, research)

	g := New([]*blackboard.Task{research, draft})
	chain, total := g.CriticalPath()
	require.Len(t, chain, 1)
	assert.Equal(t, draft.ID, chain[0].ID)
	assert.Equal(t, 120, total)
}

func TestCriticalPathDeterministicTies(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := newTask("branch a", 60)
	b := newTask("branch b", 60)
	a.ID = "00000000-0000-0000-0000-00000000000a"
	b.ID = "00000000-0000-0000-0000-00000000000b"
	a.CreatedAt, b.CreatedAt = base, base

	top := newTask("merge", 30)
	dependOn(top, blackboard.DependencyHard, a, b)

	for i := 0; i < 5; i++ {
		g := New([]*blackboard.Task{top, a, b})
		chain, total := g.CriticalPath()
		require.Len(t, chain, 2)
		assert.Equal(t, a.ID, chain[0].ID, "equal-weight branches resolve by ID")
		assert.Equal(t, 90, total)
	}
}

func TestCriticalPathEmptyGraph(t *testing.T) {
	g := New(nil)
	chain, total := g.CriticalPath()
	assert.Nil(t, chain)
	assert.Zero(t, total)
}
