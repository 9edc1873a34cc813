package team

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercatus/blackboard/internal/board"
	"github.com/mercatus/blackboard/internal/scaler"
	"github.com/mercatus/blackboard/internal/store"
	"github.com/mercatus/blackboard/internal/store/cache"
	"github.com/mercatus/blackboard/internal/store/sqlite"
	"github.com/mercatus/blackboard/pkg/blackboard"
)

type fixture struct {
	manager *Manager
	board   *board.Board
	repo    *store.Hybrid
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
	b := board.New(repo, mirror)
	return &fixture{
		manager: NewManager(repo, b, scaler.New(repo)),
		board:   b,
		repo:    repo,
	}
}

func (f *fixture) createTeam(t *testing.T) *blackboard.Team {
	t.Helper()
	team, err := f.manager.CreateTeam(context.Background(), "content-team", uuid.NewString(), uuid.NewString(), nil)
	require.NoError(t, err)
	return team
}

// bareTeam creates a team without the default roster, for staffing edge cases.
func (f *fixture) bareTeam(t *testing.T) *blackboard.Team {
	t.Helper()
	team := &blackboard.Team{
		ID:             uuid.NewString(),
		Name:           "bare-team",
		OrganizationID: uuid.NewString(),
		OwnerID:        uuid.NewString(),
		Active:         true,
		Config:         blackboard.DefaultTeamConfig(),
	}
	require.NoError(t, f.repo.CreateTeam(context.Background(), team))
	return team
}

func (f *fixture) addExpert(t *testing.T, teamID, name string, role blackboard.ExpertRole) *blackboard.Expert {
	t.Helper()
	e := &blackboard.Expert{
		ID:            uuid.NewString(),
		TeamID:        teamID,
		Role:          role,
		Name:          name,
		Status:        blackboard.ExpertStatusActive,
		MaxConcurrent: 3,
		Leader:        role == blackboard.RolePlanner,
	}
	require.NoError(t, f.repo.CreateExpert(context.Background(), e))
	return e
}

func TestCreateTeamProvisionsRoster(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.createTeam(t)

	experts, err := f.repo.ListExperts(ctx, team.ID, "")
	require.NoError(t, err)
	require.Len(t, experts, 4)

	byRole := make(map[blackboard.ExpertRole]int)
	leaders := 0
	for _, e := range experts {
		byRole[e.Role]++
		assert.Equal(t, defaultExpertConcurrency, e.MaxConcurrent)
		assert.Equal(t, blackboard.ExpertStatusActive, e.Status)
		if e.Leader {
			leaders++
			assert.Equal(t, blackboard.RolePlanner, e.Role)
		}
	}
	assert.Equal(t, 1, byRole[blackboard.RolePlanner])
	assert.Equal(t, 2, byRole[blackboard.RoleExecutor])
	assert.Equal(t, 1, byRole[blackboard.RoleEvaluator])
	assert.Equal(t, 1, leaders)
	assert.True(t, team.Active)
}

func TestCreateTeamInvalidName(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.CreateTeam(context.Background(), "", uuid.NewString(), uuid.NewString(), nil)
	assert.True(t, errors.Is(err, blackboard.ErrValidation))
}

func TestSubmitTaskDefaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.createTeam(t)

	task, err := f.manager.SubmitTask(ctx, team.ID, TaskRequest{
		Title:     "write launch post",
		CreatorID: team.OwnerID,
	})
	require.NoError(t, err)
	assert.Equal(t, blackboard.TaskStatusPending, task.Status)
	assert.Equal(t, blackboard.PriorityMedium, task.Priority)
	assert.Equal(t, blackboard.RoleExecutor, task.RequiredRole)
	assert.Equal(t, 3, task.MaxRetries)
	assert.Equal(t, "write launch post", task.Goal)
}

func TestSubmitTaskAutoAssign(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.createTeam(t)

	task, err := f.manager.SubmitTask(ctx, team.ID, TaskRequest{
		Title:      "write launch post",
		CreatorID:  team.OwnerID,
		AutoAssign: true,
	})
	require.NoError(t, err)
	assert.Equal(t, blackboard.TaskStatusAssigned, task.Status)
	require.NotNil(t, task.Assignment)
}

func TestSubmitTaskAutoAssignWithoutExpert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.bareTeam(t)

	task, err := f.manager.SubmitTask(ctx, team.ID, TaskRequest{
		Title:      "write launch post",
		CreatorID:  team.OwnerID,
		AutoAssign: true,
	})
	require.NoError(t, err, "missing expert leaves the task pending rather than failing intake")
	assert.Equal(t, blackboard.TaskStatusPending, task.Status)
}

func TestExecuteTaskAssignsAndStarts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.createTeam(t)

	task, err := f.manager.SubmitTask(ctx, team.ID, TaskRequest{Title: "draft", CreatorID: team.OwnerID})
	require.NoError(t, err)

	expert, err := f.manager.ExecuteTask(ctx, team.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, blackboard.RoleExecutor, expert.Role)

	got, err := f.board.GetTask(ctx, team.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, blackboard.TaskStatusInProgress, got.Status)
	assert.Equal(t, expert.ID, got.Assignment.ExpertID)
}

func TestExecuteTaskTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.createTeam(t)

	task, err := f.manager.SubmitTask(ctx, team.ID, TaskRequest{Title: "draft", CreatorID: team.OwnerID})
	require.NoError(t, err)
	require.NoError(t, f.board.CancelTask(ctx, team.ID, task.ID, team.OwnerID))

	_, err = f.manager.ExecuteTask(ctx, team.ID, task.ID)
	assert.True(t, errors.Is(err, blackboard.ErrInvalidTransition))
}

func TestRemoveExpertReassignsAssignedWork(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.createTeam(t)

	task, err := f.manager.SubmitTask(ctx, team.ID, TaskRequest{
		Title: "draft", CreatorID: team.OwnerID, AutoAssign: true,
	})
	require.NoError(t, err)
	victim := task.Assignment.ExpertID

	require.NoError(t, f.manager.RemoveExpert(ctx, team.ID, victim))

	got, err := f.board.GetTask(ctx, team.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, blackboard.TaskStatusAssigned, got.Status)
	assert.NotEqual(t, victim, got.Assignment.ExpertID)

	_, err = f.repo.GetExpert(ctx, team.ID, victim)
	assert.True(t, errors.Is(err, blackboard.ErrNotFound))
}

func TestRemoveExpertRecallsInProgressWork(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.createTeam(t)

	task, err := f.manager.SubmitTask(ctx, team.ID, TaskRequest{Title: "draft", CreatorID: team.OwnerID})
	require.NoError(t, err)
	expert, err := f.manager.ExecuteTask(ctx, team.ID, task.ID)
	require.NoError(t, err)

	require.NoError(t, f.manager.RemoveExpert(ctx, team.ID, expert.ID))

	got, err := f.board.GetTask(ctx, team.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, blackboard.TaskStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount, "a recall consumes a retry")
}

func TestRemoveExpertNoReplacement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.bareTeam(t)
	only := f.addExpert(t, team.ID, "Monica 1", blackboard.RoleExecutor)

	task, err := f.manager.SubmitTask(ctx, team.ID, TaskRequest{
		Title: "draft", CreatorID: team.OwnerID, AutoAssign: true,
	})
	require.NoError(t, err)
	require.Equal(t, blackboard.TaskStatusAssigned, task.Status)

	err = f.manager.RemoveExpert(ctx, team.ID, only.ID)
	assert.True(t, errors.Is(err, blackboard.ErrNoAvailableExpert))

	restored, err := f.repo.GetExpert(ctx, team.ID, only.ID)
	require.NoError(t, err)
	assert.Equal(t, blackboard.ExpertStatusActive, restored.Status, "a failed removal restores the expert")
}

func TestRemoveExpertLeaderRefused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.createTeam(t)

	experts, err := f.repo.ListExperts(ctx, team.ID, blackboard.RolePlanner)
	require.NoError(t, err)
	require.Len(t, experts, 1)

	err = f.manager.RemoveExpert(ctx, team.ID, experts[0].ID)
	assert.True(t, errors.Is(err, blackboard.ErrValidation))
}

func TestScaleExpertsUpRespectsCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.createTeam(t)

	require.NoError(t, f.manager.ScaleExperts(ctx, team.ID, blackboard.RoleExecutor, 1))

	experts, err := f.repo.ListExperts(ctx, team.ID, blackboard.RoleExecutor)
	require.NoError(t, err)
	assert.Len(t, experts, 3)

	err = f.manager.ScaleExperts(ctx, team.ID, blackboard.RoleExecutor, 1)
	assert.True(t, errors.Is(err, blackboard.ErrCapacityExceeded))
}

func TestScaleExpertsNeverPlanner(t *testing.T) {
	f := newFixture(t)
	team := f.createTeam(t)

	err := f.manager.ScaleExperts(context.Background(), team.ID, blackboard.RolePlanner, 1)
	assert.True(t, errors.Is(err, blackboard.ErrValidation))
}

func TestScaleExpertsDownKeepsOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.createTeam(t)

	require.NoError(t, f.manager.ScaleExperts(ctx, team.ID, blackboard.RoleExecutor, -1))

	experts, err := f.repo.ListExperts(ctx, team.ID, blackboard.RoleExecutor)
	require.NoError(t, err)
	assert.Len(t, experts, 1)

	err = f.manager.ScaleExperts(ctx, team.ID, blackboard.RoleExecutor, -1)
	assert.True(t, errors.Is(err, blackboard.ErrValidation), "the last instance of a role is kept")
}

func TestScaleExpertsDownDrainsLongestIdle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.bareTeam(t)

	stale := &blackboard.Expert{
		ID:            uuid.NewString(),
		TeamID:        team.ID,
		Role:          blackboard.RoleExecutor,
		Name:          "Monica 1",
		Status:        blackboard.ExpertStatusActive,
		MaxConcurrent: 3,
		LastActivity:  time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.repo.CreateExpert(ctx, stale))

	fresh := &blackboard.Expert{
		ID:            uuid.NewString(),
		TeamID:        team.ID,
		Role:          blackboard.RoleExecutor,
		Name:          "Monica 2",
		Status:        blackboard.ExpertStatusActive,
		MaxConcurrent: 3,
		LastActivity:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.repo.CreateExpert(ctx, fresh))

	require.NoError(t, f.manager.ScaleExperts(ctx, team.ID, blackboard.RoleExecutor, -1))

	remaining, err := f.repo.ListExperts(ctx, team.ID, blackboard.RoleExecutor)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID, "the stalest idle instance is retired first")
}

func TestDeactivateTeamCancelsOpenWork(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.createTeam(t)

	pending, err := f.manager.SubmitTask(ctx, team.ID, TaskRequest{Title: "one", CreatorID: team.OwnerID})
	require.NoError(t, err)
	assigned, err := f.manager.SubmitTask(ctx, team.ID, TaskRequest{
		Title: "two", CreatorID: team.OwnerID, AutoAssign: true,
	})
	require.NoError(t, err)

	require.NoError(t, f.manager.DeactivateTeam(ctx, team.ID))

	for _, id := range []string{pending.ID, assigned.ID} {
		got, err := f.board.GetTask(ctx, team.ID, id)
		require.NoError(t, err)
		assert.Equal(t, blackboard.TaskStatusCancelled, got.Status)
	}

	experts, err := f.repo.ListExperts(ctx, team.ID, "")
	require.NoError(t, err)
	for _, e := range experts {
		assert.Equal(t, blackboard.ExpertStatusOffline, e.Status)
	}

	_, err = f.manager.SubmitTask(ctx, team.ID, TaskRequest{Title: "three", CreatorID: team.OwnerID})
	assert.True(t, errors.Is(err, blackboard.ErrValidation), "deactivated teams stop accepting work")
}

func TestApplyScaling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.createTeam(t)

	executors, err := f.repo.ListExperts(ctx, team.ID, blackboard.RoleExecutor)
	require.NoError(t, err)
	for _, e := range executors {
		e.CurrentTasks = e.MaxConcurrent
		e.Status = blackboard.ExpertStatusBusy
		require.NoError(t, f.repo.UpdateExpert(ctx, e))
	}

	applied, err := f.manager.ApplyScaling(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, scaler.ScaleUp, applied[0].Action)
	assert.Equal(t, blackboard.RoleExecutor, applied[0].Role)

	grown, err := f.repo.ListExperts(ctx, team.ID, blackboard.RoleExecutor)
	require.NoError(t, err)
	assert.Len(t, grown, 3)
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := f.createTeam(t)

	_, err := f.manager.SubmitTask(ctx, team.ID, TaskRequest{Title: "draft", CreatorID: team.OwnerID})
	require.NoError(t, err)

	dash, err := f.manager.Dashboard(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, team.ID, dash.Team.ID)
	assert.Len(t, dash.Experts, 4)
	assert.Equal(t, 1, dash.Ready)
	assert.Equal(t, 1, dash.Metrics.ByStatus[blackboard.TaskStatusPending])
}

func TestOrganizationOverview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	orgID := uuid.NewString()
	first, err := f.manager.CreateTeam(ctx, "team-one", orgID, uuid.NewString(), nil)
	require.NoError(t, err)
	_, err = f.manager.CreateTeam(ctx, "team-two", orgID, uuid.NewString(), nil)
	require.NoError(t, err)
	_, err = f.manager.CreateTeam(ctx, "other-org", uuid.NewString(), uuid.NewString(), nil)
	require.NoError(t, err)

	require.NoError(t, f.manager.DeactivateTeam(ctx, first.ID))

	overview, err := f.manager.OrganizationOverview(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, 2, overview.Teams)
	assert.Equal(t, 1, overview.ActiveTeams)
	assert.Len(t, overview.Dashboards, 2)
}
