package blackboard

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTask() *Task {
	return &Task{
		ID:           uuid.New().String(),
		TeamID:       uuid.New().String(),
		Title:        "Write launch post",
		Description:  "Draft the launch announcement",
		Goal:         "Publishable launch post",
		Status:       TaskStatusPending,
		Priority:     PriorityMedium,
		RequiredRole: RoleExecutor,
		MaxRetries:   3,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Task)
		wantErr string
	}{
		{name: "valid task", mutate: func(*Task) {}, wantErr: ""},
		{name: "bad ID", mutate: func(tk *Task) { tk.ID = "nope" }, wantErr: "invalid task ID"},
		{name: "empty title", mutate: func(tk *Task) { tk.Title = "" }, wantErr: "title cannot be empty"},
		{name: "empty description", mutate: func(tk *Task) { tk.Description = "" }, wantErr: "description cannot be empty"},
		{name: "empty goal", mutate: func(tk *Task) { tk.Goal = "" }, wantErr: "goal cannot be empty"},
		{name: "unknown status", mutate: func(tk *Task) { tk.Status = "limbo" }, wantErr: "invalid status"},
		{name: "unknown priority", mutate: func(tk *Task) { tk.Priority = "asap" }, wantErr: "invalid priority"},
		{name: "unknown role", mutate: func(tk *Task) { tk.RequiredRole = "wizard" }, wantErr: "invalid required role"},
		{name: "negative retries", mutate: func(tk *Task) { tk.MaxRetries = -1 }, wantErr: "max retries"},
		{
			name: "self dependency",
			mutate: func(tk *Task) {
				tk.Dependencies = []TaskDependency{{TaskID: tk.ID, Kind: DependencyHard}}
			},
			wantErr: "depend on itself",
		},
		{name: "unknown platform", mutate: func(tk *Task) { tk.Platforms = []string{"myspace"} }, wantErr: `unknown platform "myspace"`},
		{name: "unknown region", mutate: func(tk *Task) { tk.Regions = []string{"atlantis"} }, wantErr: `unknown region "atlantis"`},
		{name: "unknown content type", mutate: func(tk *Task) { tk.ContentTypes = []string{"hologram"} }, wantErr: `unknown content type "hologram"`},
		{
			name: "known tags accepted",
			mutate: func(tk *Task) {
				tk.Platforms = []string{"twitter", "facebook"}
				tk.Regions = []string{"usa", "eu"}
				tk.ContentTypes = []string{"text", "video"}
			},
			wantErr: "",
		},
		{
			name: "unknown dependency kind",
			mutate: func(tk *Task) {
				tk.Dependencies = []TaskDependency{{TaskID: uuid.New().String(), Kind: "maybe"}}
			},
			wantErr: "unknown dependency kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := validTask()
			tt.mutate(task)
			err := task.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestExpertValidate(t *testing.T) {
	expert := &Expert{
		ID:            uuid.New().String(),
		TeamID:        uuid.New().String(),
		Role:          RoleExecutor,
		Name:          "Monica 1",
		Status:        ExpertStatusActive,
		MaxConcurrent: 3,
	}
	assert.NoError(t, expert.Validate())

	t.Run("current above max rejected", func(t *testing.T) {
		e := *expert
		e.CurrentTasks = 4
		err := e.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "outside [0,3]")
	})

	t.Run("zero max concurrent rejected", func(t *testing.T) {
		e := *expert
		e.MaxConcurrent = 0
		assert.Error(t, e.Validate())
	})
}

func TestExpertSuccessRate(t *testing.T) {
	e := &Expert{}
	assert.InDelta(t, 0.7, e.SuccessRate(), 1e-9, "new expert gets the neutral prior")

	e.Metrics = map[string]float64{"completed_tasks": 8, "failed_tasks": 2}
	assert.InDelta(t, 0.8, e.SuccessRate(), 1e-9)
}

func TestTeamConfigValidate(t *testing.T) {
	cfg := DefaultTeamConfig()
	assert.NoError(t, cfg.Validate())

	t.Run("planner cap locked at one", func(t *testing.T) {
		c := cfg
		c.MaxPlanners = 2
		assert.Error(t, c.Validate())
	})

	t.Run("inverted thresholds rejected", func(t *testing.T) {
		c := cfg
		c.ScaleUpThreshold = 0.2
		c.ScaleDownThreshold = 0.5
		assert.Error(t, c.Validate())
	})
}

func TestPriorityOrdering(t *testing.T) {
	assert.Greater(t, PriorityUrgent.Rank(), PriorityHigh.Rank())
	assert.Greater(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Greater(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.InDelta(t, 1.0, PriorityUrgent.Weight(), 1e-9)
	assert.InDelta(t, 0.4, PriorityLow.Weight(), 1e-9)
}

func TestHardDependencies(t *testing.T) {
	task := validTask()
	hard := uuid.New().String()
	task.Dependencies = []TaskDependency{
		{TaskID: hard, Kind: DependencyHard},
		{TaskID: uuid.New().String(), Kind: DependencySoft},
	}

	got := task.HardDependencies()
	require.Len(t, got, 1)
	assert.Equal(t, hard, got[0].TaskID)
}
