// Package team provisions and operates teams: expert staffing, task intake,
// scaling execution, and reporting. The manager holds an explicit handle to
// every collaborator; nothing here is process-global.
package team

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mercatus/blackboard/internal/board"
	"github.com/mercatus/blackboard/internal/scaler"
	"github.com/mercatus/blackboard/internal/store"
	"github.com/mercatus/blackboard/pkg/blackboard"
)

// Default staffing for a new team: one planner leading two executors and
// one evaluator, each able to work three tasks at once.
const defaultExpertConcurrency = 3

var defaultRoster = []struct {
	name string
	role blackboard.ExpertRole
}{
	{"Jeff", blackboard.RolePlanner},
	{"Monica 1", blackboard.RoleExecutor},
	{"Monica 2", blackboard.RoleExecutor},
	{"Henry", blackboard.RoleEvaluator},
}

// Manager operates teams end to end.
type Manager struct {
	repo   *store.Hybrid
	board  *board.Board
	scaler *scaler.Scaler
}

// NewManager wires a manager from its collaborators.
func NewManager(repo *store.Hybrid, b *board.Board, s *scaler.Scaler) *Manager {
	return &Manager{repo: repo, board: b, scaler: s}
}

// CreateTeam provisions a new team with the default roster. A nil config
// takes the documented defaults.
func (m *Manager) CreateTeam(ctx context.Context, name, organizationID, ownerID string, cfg *blackboard.TeamConfig) (*blackboard.Team, error) {
	config := blackboard.DefaultTeamConfig()
	if cfg != nil {
		config = *cfg
	}

	team := &blackboard.Team{
		ID:             uuid.NewString(),
		Name:           name,
		OrganizationID: organizationID,
		OwnerID:        ownerID,
		Active:         true,
		Config:         config,
	}
	if err := team.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", blackboard.ErrValidation, err)
	}
	if err := m.repo.CreateTeam(ctx, team); err != nil {
		return nil, err
	}

	for _, member := range defaultRoster {
		expert := &blackboard.Expert{
			ID:            uuid.NewString(),
			TeamID:        team.ID,
			Role:          member.role,
			Name:          member.name,
			Status:        blackboard.ExpertStatusActive,
			MaxConcurrent: defaultExpertConcurrency,
			Leader:        member.role == blackboard.RolePlanner,
		}
		if err := m.repo.CreateExpert(ctx, expert); err != nil {
			return nil, fmt.Errorf("provision %s: %w", member.name, err)
		}
	}
	return team, nil
}

// GetTeam looks up a team by ID.
func (m *Manager) GetTeam(ctx context.Context, teamID string) (*blackboard.Team, error) {
	return m.repo.GetTeam(ctx, teamID)
}

// ListExperts returns a team's experts, optionally filtered by role.
func (m *Manager) ListExperts(ctx context.Context, teamID string, role blackboard.ExpertRole) ([]*blackboard.Expert, error) {
	return m.repo.ListExperts(ctx, teamID, role)
}

// DeactivateTeam retires a team: open tasks are cancelled, experts go
// offline, and the team stops accepting work. The team record and its full
// task history survive.
func (m *Manager) DeactivateTeam(ctx context.Context, teamID string) error {
	team, err := m.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if !team.Active {
		return nil
	}

	tasks, err := m.repo.ListTasks(ctx, teamID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Status.Terminal() {
			continue
		}
		if err := m.board.CancelTask(ctx, teamID, t.ID, "team_manager"); err != nil {
			return fmt.Errorf("cancel task %s: %w", t.ID, err)
		}
	}

	experts, err := m.repo.ListExperts(ctx, teamID, "")
	if err != nil {
		return err
	}
	for _, e := range experts {
		e.Status = blackboard.ExpertStatusOffline
		if err := m.repo.UpdateExpert(ctx, e); err != nil {
			return fmt.Errorf("offline expert %s: %w", e.ID, err)
		}
	}

	team.Active = false
	return m.repo.UpdateTeam(ctx, team)
}

// ScaleExperts changes the instance count of a role by delta. The planner
// role never scales; growth respects the role cap; shrink drains idle
// instances first and refuses to drop a role to zero.
func (m *Manager) ScaleExperts(ctx context.Context, teamID string, role blackboard.ExpertRole, delta int) error {
	if role == blackboard.RolePlanner {
		return blackboard.ValidationErrorf("planner instances are fixed at one")
	}
	if err := role.Validate(); err != nil {
		return fmt.Errorf("%w: %s", blackboard.ErrValidation, err)
	}
	if delta == 0 {
		return nil
	}

	team, err := m.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	experts, err := m.repo.ListExperts(ctx, teamID, role)
	if err != nil {
		return err
	}

	if delta > 0 {
		roleCap := team.Config.MaxForRole(role)
		if len(experts)+delta > roleCap {
			return blackboard.CapacityError("role %s capped at %d instances", role, roleCap)
		}
		for i := 0; i < delta; i++ {
			expert := &blackboard.Expert{
				ID:            uuid.NewString(),
				TeamID:        teamID,
				Role:          role,
				Name:          fmt.Sprintf("%s %d", rosterName(role), len(experts)+i+1),
				Status:        blackboard.ExpertStatusActive,
				MaxConcurrent: defaultExpertConcurrency,
			}
			if err := m.repo.CreateExpert(ctx, expert); err != nil {
				return err
			}
		}
		return nil
	}

	remove := -delta
	if len(experts)-remove < 1 {
		return blackboard.ValidationErrorf("role %s cannot drop below one instance", role)
	}
	// Drain the least loaded instances first, longest idle among equals.
	for i := 0; i < remove; i++ {
		var victim *blackboard.Expert
		for _, e := range experts {
			if victim == nil || drainBefore(e, victim) {
				victim = e
			}
		}
		if err := m.RemoveExpert(ctx, teamID, victim.ID); err != nil {
			return err
		}
		kept := experts[:0]
		for _, e := range experts {
			if e.ID != victim.ID {
				kept = append(kept, e)
			}
		}
		experts = kept
	}
	return nil
}

// drainBefore orders shrink candidates: fewest current tasks, then the
// stalest last activity.
func drainBefore(a, b *blackboard.Expert) bool {
	if a.CurrentTasks != b.CurrentTasks {
		return a.CurrentTasks < b.CurrentTasks
	}
	return a.LastActivity.Before(b.LastActivity)
}

// RemoveExpert drains an expert and deletes it. Assigned tasks move to a
// replacement; in-progress tasks return to pending for another attempt. The
// removal fails when assigned work has no replacement instance.
func (m *Manager) RemoveExpert(ctx context.Context, teamID, expertID string) error {
	expert, err := m.repo.GetExpert(ctx, teamID, expertID)
	if err != nil {
		return err
	}
	if expert.Leader {
		return blackboard.ValidationErrorf("the team leader cannot be removed")
	}

	// Offline first so the scheduler stops considering it.
	expert.Status = blackboard.ExpertStatusOffline
	if err := m.repo.UpdateExpert(ctx, expert); err != nil {
		return err
	}

	tasks, err := m.repo.ListTasks(ctx, teamID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		a := t.Assignment
		if a == nil || a.ExpertID != expertID || a.Superseded {
			continue
		}
		switch t.Status {
		case blackboard.TaskStatusAssigned:
			if _, err := m.board.ReassignTask(ctx, teamID, t.ID, "team_manager"); err != nil {
				if errors.Is(err, blackboard.ErrNoAvailableExpert) {
					// Put the expert back; the work has nowhere to go.
					expert.Status = blackboard.ExpertStatusActive
					if restoreErr := m.repo.UpdateExpert(ctx, expert); restoreErr != nil {
						return restoreErr
					}
				}
				return fmt.Errorf("reassign task %s: %w", t.ID, err)
			}
		case blackboard.TaskStatusInProgress:
			if err := m.board.ReviseTask(ctx, teamID, t.ID, "expert removed"); err != nil {
				return fmt.Errorf("recall task %s: %w", t.ID, err)
			}
		}
	}

	return m.repo.DeleteExpert(ctx, teamID, expertID)
}

// TaskRequest is the intake shape for new work.
type TaskRequest struct {
	Title          string
	Description    string
	Goal           string
	Priority       blackboard.TaskPriority
	RequiredRole   blackboard.ExpertRole
	Platforms      []string
	Regions        []string
	RequiredSkills []string
	Dependencies   []blackboard.TaskDependency
	EstimatedMins  int
	MaxRetries     int
	DueAt          *time.Time
	CreatorID      string
	// AutoAssign hands the task to an expert immediately when its
	// dependencies allow it.
	AutoAssign bool
}

// SubmitTask creates a task from an intake request. With AutoAssign set the
// task is handed to an expert in the same call when it is ready; a missing
// expert or a capacity limit leaves it pending rather than failing intake.
func (m *Manager) SubmitTask(ctx context.Context, teamID string, req TaskRequest) (*blackboard.Task, error) {
	priority := req.Priority
	if priority == "" {
		priority = blackboard.PriorityMedium
	}
	role := req.RequiredRole
	if role == "" {
		role = blackboard.RoleExecutor
	}
	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	goal := req.Goal
	if goal == "" {
		goal = req.Title
	}
	description := req.Description
	if description == "" {
		description = req.Title
	}

	task := &blackboard.Task{
		ID:             uuid.NewString(),
		TeamID:         teamID,
		Title:          req.Title,
		Description:    description,
		Goal:           goal,
		Status:         blackboard.TaskStatusPending,
		Priority:       priority,
		RequiredRole:   role,
		Platforms:      req.Platforms,
		Regions:        req.Regions,
		RequiredSkills: req.RequiredSkills,
		Dependencies:   req.Dependencies,
		EstimatedMins:  req.EstimatedMins,
		MaxRetries:     maxRetries,
		DueAt:          req.DueAt,
		CreatorID:      req.CreatorID,
	}
	if err := m.board.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	if req.AutoAssign {
		if _, err := m.board.AutoAssignTask(ctx, teamID, task.ID, "team_manager"); err != nil {
			if !errors.Is(err, blackboard.ErrNoAvailableExpert) &&
				!errors.Is(err, blackboard.ErrCapacityExceeded) &&
				!errors.Is(err, blackboard.ErrValidation) {
				return nil, err
			}
		}
	}
	return m.board.GetTask(ctx, teamID, task.ID)
}

// ExecuteTask pushes a task into active work: pending tasks get an expert
// first, then the assigned expert starts. Returns the working expert.
func (m *Manager) ExecuteTask(ctx context.Context, teamID, taskID string) (*blackboard.Expert, error) {
	task, err := m.board.GetTask(ctx, teamID, taskID)
	if err != nil {
		return nil, err
	}

	if task.Status == blackboard.TaskStatusPending {
		if _, err := m.board.AutoAssignTask(ctx, teamID, taskID, "team_manager"); err != nil {
			return nil, err
		}
		task, err = m.board.GetTask(ctx, teamID, taskID)
		if err != nil {
			return nil, err
		}
	}
	if task.Status != blackboard.TaskStatusAssigned || task.Assignment == nil {
		return nil, blackboard.TransitionError(task.Status, blackboard.TaskStatusInProgress)
	}

	if err := m.board.StartTask(ctx, teamID, taskID, task.Assignment.ExpertID); err != nil {
		return nil, err
	}
	return m.repo.GetExpert(ctx, teamID, task.Assignment.ExpertID)
}

// ApplyScaling evaluates the team and executes the resulting
// recommendations. Returns the decisions that were acted on.
func (m *Manager) ApplyScaling(ctx context.Context, teamID string) ([]scaler.Decision, error) {
	decisions, err := m.scaler.Evaluate(ctx, teamID)
	if err != nil {
		return nil, err
	}

	var applied []scaler.Decision
	for _, d := range decisions {
		delta := d.Delta
		if d.Action == scaler.ScaleDown {
			delta = -delta
		}
		if err := m.ScaleExperts(ctx, teamID, d.Role, delta); err != nil {
			// A capacity or floor refusal just means the recommendation
			// arrived late; skip it.
			if errors.Is(err, blackboard.ErrCapacityExceeded) || errors.Is(err, blackboard.ErrValidation) {
				continue
			}
			return applied, err
		}
		applied = append(applied, d)
	}
	return applied, nil
}

// Dashboard is a point-in-time operational view of one team.
type Dashboard struct {
	Team    *blackboard.Team     `json:"team"`
	Experts []*blackboard.Expert `json:"experts"`
	Metrics *board.TeamMetrics   `json:"metrics"`
	Ready   int                  `json:"ready_tasks"`
}

// Dashboard assembles the team view.
func (m *Manager) Dashboard(ctx context.Context, teamID string) (*Dashboard, error) {
	team, err := m.repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	experts, err := m.repo.ListExperts(ctx, teamID, "")
	if err != nil {
		return nil, err
	}
	metrics, err := m.board.PerformanceMetrics(ctx, teamID)
	if err != nil {
		return nil, err
	}
	ready, err := m.board.ReadyTasks(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Team: team, Experts: experts, Metrics: metrics, Ready: len(ready)}, nil
}

// Overview aggregates an organization's teams.
type Overview struct {
	OrganizationID string       `json:"organization_id"`
	Teams          int          `json:"teams"`
	ActiveTeams    int          `json:"active_teams"`
	Dashboards     []*Dashboard `json:"dashboards"`
}

// OrganizationOverview assembles the cross-team view for one organization.
func (m *Manager) OrganizationOverview(ctx context.Context, organizationID string) (*Overview, error) {
	teams, err := m.repo.Store().ListTeams(ctx)
	if err != nil {
		return nil, err
	}

	overview := &Overview{OrganizationID: organizationID}
	for _, team := range teams {
		if team.OrganizationID != organizationID {
			continue
		}
		overview.Teams++
		if team.Active {
			overview.ActiveTeams++
		}
		dash, err := m.Dashboard(ctx, team.ID)
		if err != nil {
			return nil, err
		}
		overview.Dashboards = append(overview.Dashboards, dash)
	}
	return overview, nil
}

func rosterName(role blackboard.ExpertRole) string {
	switch role {
	case blackboard.RoleExecutor:
		return "Monica"
	case blackboard.RoleEvaluator:
		return "Henry"
	default:
		return "Jeff"
	}
}
