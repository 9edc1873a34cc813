package resolver

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

	"github.com/mercatus/blackboard/internal/store"
	"github.com/mercatus/blackboard/internal/store/cache"
	"github.com/mercatus/blackboard/internal/store/sqlite"
	"github.com/mercatus/blackboard/pkg/blackboard"
)

func newTestRepo(t *testing.T) *store.Hybrid {
	t.Helper()

	durable, err := sqlite.Open(filepath.Join(t.TempDir(), "blackboard.db"))
	require.NoError(t, err)
	require.NoError(t, durable.Migrate(context.Background()))
	t.Cleanup(func() { _ = durable.Close() })

	mr := miniredis.RunT(t)
	mirror, err := cache.New(&redis.Options{Addr: mr.Addr()}, "test", time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mirror.Close() })

	return store.NewHybrid(durable, mirror)
}

func seedTeam(t *testing.T, repo *store.Hybrid, id string) *blackboard.Team {
	t.Helper()
	team := &blackboard.Team{
		ID:             id,
		Name:           "content-team",
		OrganizationID: uuid.NewString(),
		OwnerID:        uuid.NewString(),
		Active:         true,
		Config:         blackboard.DefaultTeamConfig(),
	}
	require.NoError(t, repo.CreateTeam(context.Background(), team))
	return team
}

func TestResolveTeamIDFullUUID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	team := seedTeam(t, repo, uuid.NewString())

	got, err := ResolveTeamID(ctx, repo, team.ID)
	require.NoError(t, err)
	assert.Equal(t, team.ID, got)
}

func TestResolveTeamIDFullUUIDMissing(t *testing.T) {
	repo := newTestRepo(t)
	_, err := ResolveTeamID(context.Background(), repo, uuid.NewString())
	assert.True(t, errors.Is(err, blackboard.ErrNotFound))
}

func TestResolveTeamIDPrefix(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	team := seedTeam(t, repo, "aaaaaaaa-0000-4000-8000-000000000001")
	seedTeam(t, repo, "bbbbbbbb-0000-4000-8000-000000000002")

	got, err := ResolveTeamID(ctx, repo, "aaaaaa")
	require.NoError(t, err)
	assert.Equal(t, team.ID, got)
}

func TestResolveTeamIDTooShort(t *testing.T) {
	repo := newTestRepo(t)
	_, err := ResolveTeamID(context.Background(), repo, "abc")
	assert.True(t, errors.Is(err, blackboard.ErrValidation))
}

func TestResolveTeamIDAmbiguous(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedTeam(t, repo, "cccccc00-0000-4000-8000-000000000001")
	seedTeam(t, repo, "cccccc00-0000-4000-8000-000000000002")

	_, err := ResolveTeamID(ctx, repo, "cccccc")
	require.Error(t, err)
	assert.True(t, IsAmbiguousError(err))
}

func TestResolveTeamIDNoMatch(t *testing.T) {
	repo := newTestRepo(t)
	seedTeam(t, repo, uuid.NewString())

	_, err := ResolveTeamID(context.Background(), repo, "zzzzzz")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
	assert.True(t, errors.Is(err, blackboard.ErrNotFound), "prefix misses map onto the not-found taxonomy")
}

func TestResolveTaskIDPrefix(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	team := seedTeam(t, repo, uuid.NewString())

	task := &blackboard.Task{
		ID:           "dddddddd-0000-4000-8000-000000000001",
		TeamID:       team.ID,
		Title:        "draft",
		Description:  "d",
		Goal:         "g",
		Status:       blackboard.TaskStatusPending,
		Priority:     blackboard.PriorityMedium,
		RequiredRole: blackboard.RoleExecutor,
		CreatorID:    team.OwnerID,
	}
	require.NoError(t, repo.CreateTasks(ctx, []*blackboard.Task{task}))

	got, err := ResolveTaskID(ctx, repo, team.ID, "dddddd")
	require.NoError(t, err)
	assert.Equal(t, task.ID, got)
}
