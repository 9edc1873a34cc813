package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercatus/blackboard/internal/board"
	"github.com/mercatus/blackboard/internal/store"
	"github.com/mercatus/blackboard/internal/store/cache"
	"github.com/mercatus/blackboard/internal/store/sqlite"
	"github.com/mercatus/blackboard/pkg/blackboard"
)

type fixture struct {
	engine *Engine
	board  *board.Board
	repo   *store.Hybrid
	team   *blackboard.Team
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	durable, err := sqlite.Open(filepath.Join(t.TempDir(), "blackboard.db"))
	require.NoError(t, err)
	require.NoError(t, durable.Migrate(context.Background()))
	t.Cleanup(func() { _ = durable.Close() })

	mr := miniredis.RunT(t)
	mirror, err := cache.New(&redis.Options{Addr: mr.Addr()}, "test", time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mirror.Close() })

	repo := store.NewHybrid(durable, mirror)
	team := &blackboard.Team{
		ID:             uuid.NewString(),
		Name:           "content-team",
		OrganizationID: uuid.NewString(),
		OwnerID:        uuid.NewString(),
		Active:         true,
		Config:         blackboard.DefaultTeamConfig(),
	}
	require.NoError(t, repo.CreateTeam(context.Background(), team))

	b := board.New(repo, mirror)
	return &fixture{engine: NewEngine(b), board: b, repo: repo, team: team}
}

func (f *fixture) addExpert(t *testing.T, name string, role blackboard.ExpertRole) *blackboard.Expert {
	t.Helper()
	e := &blackboard.Expert{
		ID:            uuid.NewString(),
		TeamID:        f.team.ID,
		Role:          role,
		Name:          name,
		Status:        blackboard.ExpertStatusActive,
		MaxConcurrent: 3,
		Leader:        role == blackboard.RolePlanner,
	}
	require.NoError(t, f.repo.CreateExpert(context.Background(), e))
	return e
}

func TestTemplateValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Template)
		wantErr bool
	}{
		{name: "builtin is valid", mutate: func(*Template) {}},
		{name: "empty name", mutate: func(tpl *Template) { tpl.Name = "" }, wantErr: true},
		{name: "no stages", mutate: func(tpl *Template) { tpl.Stages = nil }, wantErr: true},
		{name: "duplicate stage", mutate: func(tpl *Template) { tpl.Stages[1].Name = "planning" }, wantErr: true},
		{name: "bad role", mutate: func(tpl *Template) { tpl.Stages[0].Role = "wizard" }, wantErr: true},
		{name: "forward dependency", mutate: func(tpl *Template) { tpl.Stages[0].DependsOn = []string{"review"} }, wantErr: true},
		{name: "unknown dependency", mutate: func(tpl *Template) { tpl.Stages[2].DependsOn = []string{"missing"} }, wantErr: true},
		{name: "negative duration", mutate: func(tpl *Template) { tpl.Stages[0].EstimatedMins = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := ContentProduction()
			tt.mutate(tpl)
			err := tpl.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, blackboard.ErrInvalidWorkflow))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: short_form
stages:
  - name: planning
    role: planner
    estimated_mins: 30
  - name: drafting
    role: executor
    priority: high
    estimated_mins: 60
    depends_on: [planning]
`), 0o644))

	tpl, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "short_form", tpl.Name)
	require.Len(t, tpl.Stages, 2)
	assert.Equal(t, blackboard.RoleExecutor, tpl.Stages[1].Role)
	assert.Equal(t, blackboard.PriorityHigh, tpl.Stages[1].Priority)
	assert.Equal(t, []string{"planning"}, tpl.Stages[1].DependsOn)
}

func TestLoadTemplateInvalid(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTemplate(filepath.Join(dir, "absent.yml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yml")
		require.NoError(t, os.WriteFile(path, []byte("stages: ["), 0o644))
		_, err := LoadTemplate(path)
		assert.True(t, errors.Is(err, blackboard.ErrInvalidWorkflow))
	})

	t.Run("structurally invalid template", func(t *testing.T) {
		path := filepath.Join(dir, "bad-role.yml")
		require.NoError(t, os.WriteFile(path, []byte(`
name: bad
stages:
  - name: only
    role: wizard
`), 0o644))
		_, err := LoadTemplate(path)
		assert.True(t, errors.Is(err, blackboard.ErrInvalidWorkflow))
	})
}

func TestInstantiateCreatesLinkedStages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	inst, err := f.engine.Instantiate(ctx, f.team.ID, ContentProduction(), Request{
		Title:     "Launch announcement",
		Goal:      "Publishable launch post",
		CreatorID: f.team.OwnerID,
		Platforms: []string{"twitter"},
	})
	require.NoError(t, err)
	require.Len(t, inst.Tasks, 3)

	planning, content, review := inst.Tasks[0], inst.Tasks[1], inst.Tasks[2]
	assert.Equal(t, blackboard.RolePlanner, planning.RequiredRole)
	assert.Equal(t, 120, planning.EstimatedMins)
	assert.Empty(t, planning.Dependencies)

	require.Len(t, content.Dependencies, 1)
	assert.Equal(t, planning.ID, content.Dependencies[0].TaskID)
	assert.Equal(t, blackboard.DependencyHard, content.Dependencies[0].Kind)
	assert.Equal(t, 180, content.EstimatedMins)

	require.Len(t, review.Dependencies, 1)
	assert.Equal(t, content.ID, review.Dependencies[0].TaskID)
	assert.Equal(t, blackboard.RoleEvaluator, review.RequiredRole)

	// All three landed on the board.
	status, err := f.engine.Status(ctx, f.team.ID, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]blackboard.TaskStatus{
		"planning": blackboard.TaskStatusPending,
		"content":  blackboard.TaskStatusPending,
		"review":   blackboard.TaskStatusPending,
	}, status)
}

func TestInstantiateInvalidTemplate(t *testing.T) {
	f := newFixture(t)
	tpl := ContentProduction()
	tpl.Stages[0].Role = "wizard"

	_, err := f.engine.Instantiate(context.Background(), f.team.ID, tpl, Request{Title: "x", CreatorID: uuid.NewString()})
	assert.True(t, errors.Is(err, blackboard.ErrInvalidWorkflow))
}

func TestInstantiateAtomicOnQueueLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.team.Config.TaskQueueLimit = 2
	require.NoError(t, f.repo.UpdateTeam(ctx, f.team))

	_, err := f.engine.Instantiate(ctx, f.team.ID, ContentProduction(), Request{
		Title: "Launch announcement", CreatorID: f.team.OwnerID,
	})
	require.True(t, errors.Is(err, blackboard.ErrCapacityExceeded))

	tasks, err := f.repo.ListTasks(ctx, f.team.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks, "no partial workflow on the board")
}

// Run the built-in workflow end to end: each completion flips the next
// stage to ready and Advance hands it to the right role.
func TestAdvanceThroughStages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jeff := f.addExpert(t, "Jeff", blackboard.RolePlanner)
	monica := f.addExpert(t, "Monica", blackboard.RoleExecutor)
	henry := f.addExpert(t, "Henry", blackboard.RoleEvaluator)

	inst, err := f.engine.Instantiate(ctx, f.team.ID, ContentProduction(), Request{
		Title: "Launch announcement", Goal: "Publishable launch post", CreatorID: f.team.OwnerID,
	})
	require.NoError(t, err)
	planning, content, review := inst.Tasks[0], inst.Tasks[1], inst.Tasks[2]

	// Only the planning stage is ready at first.
	assigned, err := f.engine.Advance(ctx, f.team.ID, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, assigned)

	got, err := f.board.GetTask(ctx, f.team.ID, planning.ID)
	require.NoError(t, err)
	assert.Equal(t, jeff.ID, got.Assignment.ExpertID)

	require.NoError(t, f.board.StartTask(ctx, f.team.ID, planning.ID, jeff.ID))
	require.NoError(t, f.board.CompleteTask(ctx, f.team.ID, planning.ID, "plan"))

	// Planning done: content becomes ready, review still blocked.
	assigned, err = f.engine.Advance(ctx, f.team.ID, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, assigned)

	got, err = f.board.GetTask(ctx, f.team.ID, content.ID)
	require.NoError(t, err)
	assert.Equal(t, monica.ID, got.Assignment.ExpertID)
	reviewTask, err := f.board.GetTask(ctx, f.team.ID, review.ID)
	require.NoError(t, err)
	assert.Equal(t, blackboard.TaskStatusPending, reviewTask.Status)

	require.NoError(t, f.board.StartTask(ctx, f.team.ID, content.ID, monica.ID))
	require.NoError(t, f.board.CompleteTask(ctx, f.team.ID, content.ID, "draft"))

	assigned, err = f.engine.Advance(ctx, f.team.ID, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, assigned)

	require.NoError(t, f.board.StartTask(ctx, f.team.ID, review.ID, henry.ID))
	require.NoError(t, f.board.CompleteTask(ctx, f.team.ID, review.ID, "approved"))

	done, err := f.engine.Done(ctx, f.team.ID, inst.ID)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestAdvanceDefersWhenNoExpert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// No planner on the team yet.

	inst, err := f.engine.Instantiate(ctx, f.team.ID, ContentProduction(), Request{
		Title: "Launch announcement", CreatorID: f.team.OwnerID,
	})
	require.NoError(t, err)

	assigned, err := f.engine.Advance(ctx, f.team.ID, inst.ID)
	require.NoError(t, err)
	assert.Zero(t, assigned, "missing expert defers the stage instead of failing")

	status, err := f.engine.Status(ctx, f.team.ID, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, blackboard.TaskStatusPending, status["planning"])
}

func TestStatusUnknownInstance(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Status(context.Background(), f.team.ID, uuid.NewString())
	assert.True(t, errors.Is(err, blackboard.ErrNotFound))
}

func TestAdvanceReschedulesFailedStage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jeff := f.addExpert(t, "Jeff", blackboard.RolePlanner)

	instance, err := f.engine.Instantiate(ctx, f.team.ID, ContentProduction(), Request{
		Title:     "product launch",
		CreatorID: f.team.OwnerID,
	})
	require.NoError(t, err)

	// Planning gets assigned, started, and fails once.
	_, err = f.engine.Advance(ctx, f.team.ID, instance.ID)
	require.NoError(t, err)
	planning := instance.Tasks[0]
	require.NoError(t, f.board.StartTask(ctx, f.team.ID, planning.ID, jeff.ID))
	require.NoError(t, f.board.FailTask(ctx, f.team.ID, planning.ID, "draft rejected"))

	// The next advance spends a retry and puts the stage back with Jeff.
	advanced, err := f.engine.Advance(ctx, f.team.ID, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, advanced)

	status, err := f.engine.Status(ctx, f.team.ID, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, blackboard.TaskStatusAssigned, status["planning"])

	failed, err := f.engine.Failed(ctx, f.team.ID, instance.ID)
	require.NoError(t, err)
	assert.False(t, failed)
}

func TestFailedInstanceBeyondRetryBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jeff := f.addExpert(t, "Jeff", blackboard.RolePlanner)

	instance, err := f.engine.Instantiate(ctx, f.team.ID, ContentProduction(), Request{
		Title:     "product launch",
		CreatorID: f.team.OwnerID,
	})
	require.NoError(t, err)
	planning := instance.Tasks[0]

	// Burn the whole retry budget on the planning stage.
	for {
		if _, err := f.engine.Advance(ctx, f.team.ID, instance.ID); err != nil {
			t.Fatal(err)
		}
		got, err := f.board.GetTask(ctx, f.team.ID, planning.ID)
		require.NoError(t, err)
		if got.Status != blackboard.TaskStatusAssigned {
			break
		}
		require.NoError(t, f.board.StartTask(ctx, f.team.ID, planning.ID, jeff.ID))
		require.NoError(t, f.board.FailTask(ctx, f.team.ID, planning.ID, "draft rejected"))
	}

	failed, err := f.engine.Failed(ctx, f.team.ID, instance.ID)
	require.NoError(t, err)
	assert.True(t, failed, "a stage past its retry budget fails the instance")

	done, err := f.engine.Done(ctx, f.team.ID, instance.ID)
	require.NoError(t, err)
	assert.False(t, done)
}
