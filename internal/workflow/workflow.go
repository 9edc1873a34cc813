// Package workflow turns multi-stage templates into dependency-linked task
// batches on the board and advances instances as stages complete.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mercatus/blackboard/internal/board"
	"github.com/mercatus/blackboard/pkg/blackboard"
)

// Metadata keys stamped on every task a workflow instance creates.
const (
	MetaWorkflow = "workflow"
	MetaInstance = "workflow_instance"
	MetaStage    = "workflow_stage"
)

// Stage is one step of a template. DependsOn names earlier stages; the
// instantiated task takes a hard dependency on each.
type Stage struct {
	Name           string                  `yaml:"name"`
	Role           blackboard.ExpertRole   `yaml:"role"`
	Priority       blackboard.TaskPriority `yaml:"priority"`
	EstimatedMins  int                     `yaml:"estimated_mins"`
	DependsOn      []string                `yaml:"depends_on"`
	RequiredSkills []string                `yaml:"required_skills"`
}

// Template is an ordered set of stages. Stages may only depend on stages
// declared before them, which keeps every template acyclic by construction.
type Template struct {
	Name   string  `yaml:"name"`
	Stages []Stage `yaml:"stages"`
}

// Validate checks template structure: at least one stage, unique names,
// valid roles and priorities, and backward-only dependencies.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: template name cannot be empty", blackboard.ErrInvalidWorkflow)
	}
	if len(t.Stages) == 0 {
		return fmt.Errorf("%w: template %q has no stages", blackboard.ErrInvalidWorkflow, t.Name)
	}

	seen := make(map[string]bool, len(t.Stages))
	for i, stage := range t.Stages {
		if stage.Name == "" {
			return fmt.Errorf("%w: stage %d has no name", blackboard.ErrInvalidWorkflow, i)
		}
		if seen[stage.Name] {
			return fmt.Errorf("%w: duplicate stage %q", blackboard.ErrInvalidWorkflow, stage.Name)
		}
		if err := stage.Role.Validate(); err != nil {
			return fmt.Errorf("%w: stage %q: %s", blackboard.ErrInvalidWorkflow, stage.Name, err)
		}
		if stage.Priority != "" {
			if err := stage.Priority.Validate(); err != nil {
				return fmt.Errorf("%w: stage %q: %s", blackboard.ErrInvalidWorkflow, stage.Name, err)
			}
		}
		if stage.EstimatedMins < 0 {
			return fmt.Errorf("%w: stage %q has negative duration", blackboard.ErrInvalidWorkflow, stage.Name)
		}
		for _, dep := range stage.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("%w: stage %q depends on unknown or later stage %q",
					blackboard.ErrInvalidWorkflow, stage.Name, dep)
			}
		}
		seen[stage.Name] = true
	}
	return nil
}

// LoadTemplate reads a template from a YAML file and validates it.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow template: %w", err)
	}
	var tpl Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("%w: %s", blackboard.ErrInvalidWorkflow, err)
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// ContentProduction is the built-in three-stage template: a planner breaks
// down the brief, an executor produces the content, an evaluator reviews it.
func ContentProduction() *Template {
	return &Template{
		Name: "content_production",
		Stages: []Stage{
			{Name: "planning", Role: blackboard.RolePlanner, EstimatedMins: 120},
			{Name: "content", Role: blackboard.RoleExecutor, EstimatedMins: 180, DependsOn: []string{"planning"}},
			{Name: "review", Role: blackboard.RoleEvaluator, EstimatedMins: 90, DependsOn: []string{"content"}},
		},
	}
}

// Request parameterizes an instantiation.
type Request struct {
	Title     string
	Goal      string
	CreatorID string
	Priority  blackboard.TaskPriority
	Platforms []string
	Regions   []string
}

// Instance tracks the tasks created for one workflow run.
type Instance struct {
	ID       string
	Template string
	TeamID   string
	Tasks    []*blackboard.Task
}

// Engine instantiates and advances workflows through the board.
type Engine struct {
	board *board.Board
}

// NewEngine creates a workflow engine over the board.
func NewEngine(b *board.Board) *Engine {
	return &Engine{board: b}
}

// Instantiate creates one task per stage, linked by hard dependencies, in a
// single atomic batch. Either the whole workflow lands on the board or none
// of it does.
func (e *Engine) Instantiate(ctx context.Context, teamID string, tpl *Template, req Request) (*Instance, error) {
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	if req.Title == "" {
		return nil, blackboard.ValidationErrorf("workflow request title cannot be empty")
	}

	instanceID := uuid.NewString()
	priority := req.Priority
	if priority == "" {
		priority = blackboard.PriorityMedium
	}

	byStage := make(map[string]string, len(tpl.Stages))
	tasks := make([]*blackboard.Task, 0, len(tpl.Stages))
	for _, stage := range tpl.Stages {
		stagePriority := stage.Priority
		if stagePriority == "" {
			stagePriority = priority
		}

		task := &blackboard.Task{
			ID:             uuid.NewString(),
			TeamID:         teamID,
			Title:          fmt.Sprintf("%s: %s", req.Title, stage.Name),
			Description:    fmt.Sprintf("%s stage of %q", stage.Name, req.Title),
			Goal:           req.Goal,
			Status:         blackboard.TaskStatusPending,
			Priority:       stagePriority,
			RequiredRole:   stage.Role,
			Platforms:      req.Platforms,
			Regions:        req.Regions,
			CreatorID:      req.CreatorID,
			MaxRetries:     3,
			RequiredSkills: stage.RequiredSkills,
			EstimatedMins:  stage.EstimatedMins,
			Metadata: map[string]string{
				MetaWorkflow: tpl.Name,
				MetaInstance: instanceID,
				MetaStage:    stage.Name,
			},
		}
		if task.Goal == "" {
			task.Goal = task.Title
		}
		for _, dep := range stage.DependsOn {
			task.Dependencies = append(task.Dependencies, blackboard.TaskDependency{
				TaskID: byStage[dep],
				Kind:   blackboard.DependencyHard,
			})
		}
		byStage[stage.Name] = task.ID
		tasks = append(tasks, task)
	}

	if err := e.board.CreateTaskBatch(ctx, tasks); err != nil {
		return nil, err
	}
	return &Instance{
		ID:       instanceID,
		Template: tpl.Name,
		TeamID:   teamID,
		Tasks:    tasks,
	}, nil
}

// Advance assigns every ready pending task of the instance and reschedules
// failed stages that still have retry budget. Stages whose prerequisites
// just completed flip to ready and get an expert here. A stage that finds no
// expert or hits a capacity limit stays put for the next tick; any other
// error aborts. Failed stages past their budget are left failed; Failed
// reports them.
func (e *Engine) Advance(ctx context.Context, teamID, instanceID string) (int, error) {
	ready, err := e.board.ReadyTasks(ctx, teamID)
	if err != nil {
		return 0, err
	}

	assigned := 0
	for _, task := range ready {
		if task.Metadata[MetaInstance] != instanceID {
			continue
		}
		if _, err := e.board.AutoAssignTask(ctx, teamID, task.ID, "workflow"); err != nil {
			if errors.Is(err, blackboard.ErrNoAvailableExpert) || errors.Is(err, blackboard.ErrCapacityExceeded) {
				continue
			}
			return assigned, err
		}
		assigned++
	}

	failed, err := e.board.TasksByStatus(ctx, teamID, blackboard.TaskStatusFailed)
	if err != nil {
		return assigned, err
	}
	for _, task := range failed {
		if task.Metadata[MetaInstance] != instanceID || task.RetryCount >= task.MaxRetries {
			continue
		}
		if _, err := e.board.RescheduleTask(ctx, teamID, task.ID, "workflow"); err != nil {
			if errors.Is(err, blackboard.ErrNoAvailableExpert) || errors.Is(err, blackboard.ErrCapacityExceeded) {
				continue
			}
			return assigned, err
		}
		assigned++
	}
	return assigned, nil
}

// Failed reports whether the instance can no longer finish: at least one
// stage failed with its retry budget spent.
func (e *Engine) Failed(ctx context.Context, teamID, instanceID string) (bool, error) {
	tasks, err := e.board.TasksByStatus(ctx, teamID, blackboard.TaskStatusFailed)
	if err != nil {
		return false, err
	}
	for _, task := range tasks {
		if task.Metadata[MetaInstance] == instanceID && task.RetryCount >= task.MaxRetries {
			return true, nil
		}
	}
	return false, nil
}

// Status reports the instance's progress by stage.
func (e *Engine) Status(ctx context.Context, teamID, instanceID string) (map[string]blackboard.TaskStatus, error) {
	tasks, err := e.board.SearchTasks(ctx, teamID, blackboard.TaskFilter{})
	if err != nil {
		return nil, err
	}
	status := make(map[string]blackboard.TaskStatus)
	for _, task := range tasks {
		if task.Metadata[MetaInstance] == instanceID {
			status[task.Metadata[MetaStage]] = task.Status
		}
	}
	if len(status) == 0 {
		return nil, fmt.Errorf("workflow instance %s: %w", instanceID, blackboard.ErrNotFound)
	}
	return status, nil
}

// Done reports whether every stage of the instance reached a terminal state.
func (e *Engine) Done(ctx context.Context, teamID, instanceID string) (bool, error) {
	status, err := e.Status(ctx, teamID, instanceID)
	if err != nil {
		return false, err
	}
	for _, s := range status {
		if !s.Terminal() {
			return false, nil
		}
	}
	return true, nil
}
