package blackboard

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a task. Transitions between states
// are governed by CanTransition; see statemachine.go.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting for assignment.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusAssigned indicates an expert instance has been selected
	// but has not started work yet.
	TaskStatusAssigned TaskStatus = "assigned"

	// TaskStatusInProgress indicates the assigned expert is working on the task.
	TaskStatusInProgress TaskStatus = "in_progress"

	// TaskStatusCompleted is terminal: the expert finished successfully.
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed indicates the expert's work failed. Tasks may leave
	// this state through RescheduleTask while retries remain.
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusCancelled is terminal: the task was withdrawn.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Validate checks if the TaskStatus is a valid enum value.
func (s TaskStatus) Validate() error {
	switch s {
	case TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return nil
	default:
		return fmt.Errorf("unknown task status: %q", s)
	}
}

// Terminal reports whether no further transitions are allowed from this status.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// TaskPriority orders tasks for scheduling. Urgent sorts first.
type TaskPriority string

const (
	PriorityUrgent TaskPriority = "urgent"
	PriorityHigh   TaskPriority = "high"
	PriorityMedium TaskPriority = "medium"
	PriorityLow    TaskPriority = "low"
)

// Validate checks if the TaskPriority is a valid enum value.
func (p TaskPriority) Validate() error {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return nil
	default:
		return fmt.Errorf("unknown task priority: %q", p)
	}
}

// Rank maps priority to a comparable integer, higher = more urgent.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Weight maps priority into [0,1] for the scheduler's scoring function.
func (p TaskPriority) Weight() float64 {
	switch p {
	case PriorityUrgent:
		return 1.0
	case PriorityHigh:
		return 0.8
	case PriorityMedium:
		return 0.6
	case PriorityLow:
		return 0.4
	default:
		return 0.5
	}
}

// ExpertRole is the closed set of schedulable worker roles.
type ExpertRole string

const (
	// RolePlanner is the team-leader role (singleton per team).
	RolePlanner ExpertRole = "planner"

	// RoleExecutor produces content work products.
	RoleExecutor ExpertRole = "executor"

	// RoleEvaluator reviews executor output.
	RoleEvaluator ExpertRole = "evaluator"
)

// Roles lists every expert role in a stable order.
func Roles() []ExpertRole {
	return []ExpertRole{RolePlanner, RoleExecutor, RoleEvaluator}
}

// Validate checks if the ExpertRole is a valid enum value.
func (r ExpertRole) Validate() error {
	switch r {
	case RolePlanner, RoleExecutor, RoleEvaluator:
		return nil
	default:
		return fmt.Errorf("unknown expert role: %q", r)
	}
}

// ExpertStatus is the availability state of an expert instance.
type ExpertStatus string

const (
	ExpertStatusActive  ExpertStatus = "active"
	ExpertStatusBusy    ExpertStatus = "busy"
	ExpertStatusOffline ExpertStatus = "offline"
)

// Validate checks if the ExpertStatus is a valid enum value.
func (s ExpertStatus) Validate() error {
	switch s {
	case ExpertStatusActive, ExpertStatusBusy, ExpertStatusOffline:
		return nil
	default:
		return fmt.Errorf("unknown expert status: %q", s)
	}
}

// DependencyKind distinguishes blocking from informational task relationships.
type DependencyKind string

const (
	// DependencyHard blocks scheduling until the referenced task completes.
	DependencyHard DependencyKind = "hard"

	// DependencySoft is informational and never blocks scheduling.
	DependencySoft DependencyKind = "soft"
)

// Validate checks if the DependencyKind is a valid enum value.
func (k DependencyKind) Validate() error {
	switch k {
	case DependencyHard, DependencySoft:
		return nil
	default:
		return fmt.Errorf("unknown dependency kind: %q", k)
	}
}

// TaskDependency references a prerequisite task. Hard dependencies gate
// readiness; soft ones are recorded for provenance only.
type TaskDependency struct {
	TaskID string         `json:"task_id"` // prerequisite task UUID
	Kind   DependencyKind `json:"kind"`
}

// Validate checks the dependency reference and kind.
func (d TaskDependency) Validate() error {
	if !isValidUUID(d.TaskID) {
		return fmt.Errorf("invalid dependency task ID: not a valid UUID")
	}
	return d.Kind.Validate()
}

// Known routing-tag sets. Task creation rejects tags outside these sets so
// downstream consumers never see a platform, region, or content type they
// cannot handle.
var (
	KnownPlatforms    = []string{"twitter", "facebook", "reddit", "lemon8"}
	KnownRegions      = []string{"china", "usa", "uk", "eu", "vietnam", "uae", "russia"}
	KnownContentTypes = []string{"text", "image", "video", "mixed"}
)

func knownTag(tag string, known []string) bool {
	for _, k := range known {
		if tag == k {
			return true
		}
	}
	return false
}

// TaskAssignment relates exactly one task to exactly one expert instance.
// Assignments are superseded, never mutated, on reassignment so the full
// assignment history survives.
type TaskAssignment struct {
	ID            string     `json:"id"`
	TaskID        string     `json:"task_id"`
	ExpertID      string     `json:"expert_id"`
	AssignedBy    string     `json:"assigned_by"`
	AssignedAt    time.Time  `json:"assigned_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	EstimatedMins int        `json:"estimated_mins,omitempty"`
	ActualMins    int        `json:"actual_mins,omitempty"`
	Superseded    bool       `json:"superseded,omitempty"`
}

// Task is the unit of work on the board.
type Task struct {
	ID           string `json:"id"`
	TeamID       string `json:"team_id"`
	ParentTaskID string `json:"parent_task_id,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description"`
	Goal        string `json:"goal"`

	Status   TaskStatus   `json:"status"`
	Priority TaskPriority `json:"priority"`

	RequiredRole ExpertRole      `json:"required_role"`
	Assignment   *TaskAssignment `json:"assignment,omitempty"`

	// Routing tags, opaque to the core beyond membership validation.
	Platforms    []string `json:"platforms,omitempty"`
	Regions      []string `json:"regions,omitempty"`
	ContentTypes []string `json:"content_types,omitempty"`

	Dependencies []TaskDependency `json:"dependencies,omitempty"`

	CreatorID     string `json:"creator_id"`
	RetryCount    int    `json:"retry_count"`
	MaxRetries    int    `json:"max_retries"`
	FailureReason string `json:"failure_reason,omitempty"`

	// RequiredSkills feed the scheduler's specialization match.
	RequiredSkills []string          `json:"required_skills,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ExecutionLog   []string          `json:"execution_log,omitempty"`

	// EstimatedMins feeds the dependency engine's critical-path weighting.
	EstimatedMins int `json:"estimated_mins,omitempty"`

	// Revision increments on every store write; stale writers are rejected.
	Revision int64 `json:"revision"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DueAt     *time.Time `json:"due_at,omitempty"`
}

// Validate checks the Task's field values. It does not consult other tasks;
// cross-task checks (dependency cycles) belong to the dependency engine.
func (t *Task) Validate() error {
	if !isValidUUID(t.ID) {
		return fmt.Errorf("invalid task ID: not a valid UUID")
	}
	if t.TeamID == "" {
		return fmt.Errorf("team ID cannot be empty")
	}
	if t.Title == "" {
		return fmt.Errorf("task title cannot be empty")
	}
	if t.Description == "" {
		return fmt.Errorf("task description cannot be empty")
	}
	if t.Goal == "" {
		return fmt.Errorf("task goal cannot be empty")
	}
	if err := t.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}
	if err := t.Priority.Validate(); err != nil {
		return fmt.Errorf("invalid priority: %w", err)
	}
	if err := t.RequiredRole.Validate(); err != nil {
		return fmt.Errorf("invalid required role: %w", err)
	}
	if t.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", t.MaxRetries)
	}
	for _, p := range t.Platforms {
		if !knownTag(p, KnownPlatforms) {
			return fmt.Errorf("unknown platform %q", p)
		}
	}
	for _, r := range t.Regions {
		if !knownTag(r, KnownRegions) {
			return fmt.Errorf("unknown region %q", r)
		}
	}
	for _, c := range t.ContentTypes {
		if !knownTag(c, KnownContentTypes) {
			return fmt.Errorf("unknown content type %q", c)
		}
	}
	for i, dep := range t.Dependencies {
		if err := dep.Validate(); err != nil {
			return fmt.Errorf("invalid dependency at index %d: %w", i, err)
		}
		if dep.TaskID == t.ID {
			return fmt.Errorf("task cannot depend on itself")
		}
	}
	return nil
}

// HardDependencies returns only the blocking dependency references.
func (t *Task) HardDependencies() []TaskDependency {
	var hard []TaskDependency
	for _, dep := range t.Dependencies {
		if dep.Kind == DependencyHard {
			hard = append(hard, dep)
		}
	}
	return hard
}

// RetriesExhausted reports whether the task has consumed its retry budget.
func (t *Task) RetriesExhausted() bool {
	return t.RetryCount >= t.MaxRetries
}

// Expert is a schedulable worker instance of a fixed role.
type Expert struct {
	ID     string       `json:"id"`
	TeamID string       `json:"team_id"`
	Role   ExpertRole   `json:"role"`
	Name   string       `json:"name"`
	Status ExpertStatus `json:"status"`

	MaxConcurrent int `json:"max_concurrent"`
	CurrentTasks  int `json:"current_tasks"`

	Specializations []string           `json:"specializations,omitempty"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`

	// Leader is true only for the singleton planner.
	Leader bool `json:"leader,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Validate checks the Expert's field values, including the capacity invariant.
func (e *Expert) Validate() error {
	if !isValidUUID(e.ID) {
		return fmt.Errorf("invalid expert ID: not a valid UUID")
	}
	if e.TeamID == "" {
		return fmt.Errorf("team ID cannot be empty")
	}
	if err := e.Role.Validate(); err != nil {
		return fmt.Errorf("invalid role: %w", err)
	}
	if e.Name == "" {
		return fmt.Errorf("expert name cannot be empty")
	}
	if err := e.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}
	if e.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent tasks must be >= 1, got %d", e.MaxConcurrent)
	}
	if e.CurrentTasks < 0 || e.CurrentTasks > e.MaxConcurrent {
		return fmt.Errorf("current task count %d outside [0,%d]", e.CurrentTasks, e.MaxConcurrent)
	}
	return nil
}

// Headroom returns the remaining task capacity of the instance.
func (e *Expert) Headroom() int {
	return e.MaxConcurrent - e.CurrentTasks
}

// SuccessRate derives the historical success rate from the metrics map.
// New experts with no history score 0.7, the neutral prior.
func (e *Expert) SuccessRate() float64 {
	completed := e.Metrics["completed_tasks"]
	failed := e.Metrics["failed_tasks"]
	total := completed + failed
	if total == 0 {
		return 0.7
	}
	return completed / total
}

// TeamConfig holds per-team limits and tuning knobs.
type TeamConfig struct {
	// MaxPlanners is fixed at 1: the planner is the singleton team leader.
	MaxPlanners   int `json:"max_planners" yaml:"max_planners"`
	MaxExecutors  int `json:"max_executors" yaml:"max_executors"`
	MaxEvaluators int `json:"max_evaluators" yaml:"max_evaluators"`

	AutoScaling        bool `json:"auto_scaling" yaml:"auto_scaling"`
	TaskQueueLimit     int  `json:"task_queue_limit" yaml:"task_queue_limit"`
	ConcurrentTaskLimit int `json:"concurrent_task_limit" yaml:"concurrent_task_limit"`

	// Scheduler scoring weights, normalised by the scheduler at use.
	WeightAvailability   float64 `json:"weight_availability" yaml:"weight_availability"`
	WeightSpecialization float64 `json:"weight_specialization" yaml:"weight_specialization"`
	WeightPriority       float64 `json:"weight_priority" yaml:"weight_priority"`
	WeightPerformance    float64 `json:"weight_performance" yaml:"weight_performance"`

	// Auto-scaler utilization thresholds in [0,1].
	ScaleUpThreshold   float64 `json:"scale_up_threshold" yaml:"scale_up_threshold"`
	ScaleDownThreshold float64 `json:"scale_down_threshold" yaml:"scale_down_threshold"`
}

// DefaultTeamConfig returns the documented starting configuration.
func DefaultTeamConfig() TeamConfig {
	return TeamConfig{
		MaxPlanners:          1,
		MaxExecutors:         3,
		MaxEvaluators:        2,
		AutoScaling:          true,
		TaskQueueLimit:       100,
		ConcurrentTaskLimit:  10,
		WeightAvailability:   0.4,
		WeightSpecialization: 0.3,
		WeightPriority:       0.2,
		WeightPerformance:    0.1,
		ScaleUpThreshold:     0.8,
		ScaleDownThreshold:   0.3,
	}
}

// MaxForRole returns the configured instance cap for a role.
func (c TeamConfig) MaxForRole(role ExpertRole) int {
	switch role {
	case RolePlanner:
		return c.MaxPlanners
	case RoleExecutor:
		return c.MaxExecutors
	case RoleEvaluator:
		return c.MaxEvaluators
	default:
		return 0
	}
}

// Validate checks the TeamConfig limits.
func (c TeamConfig) Validate() error {
	if c.MaxPlanners != 1 {
		return fmt.Errorf("planner cap must be exactly 1, got %d", c.MaxPlanners)
	}
	if c.MaxExecutors < 1 || c.MaxEvaluators < 1 {
		return fmt.Errorf("executor and evaluator caps must be >= 1")
	}
	if c.TaskQueueLimit < 1 {
		return fmt.Errorf("task queue limit must be >= 1, got %d", c.TaskQueueLimit)
	}
	if c.ConcurrentTaskLimit < 1 {
		return fmt.Errorf("concurrent task limit must be >= 1, got %d", c.ConcurrentTaskLimit)
	}
	if c.ScaleUpThreshold <= c.ScaleDownThreshold {
		return fmt.Errorf("scale-up threshold %.2f must exceed scale-down threshold %.2f",
			c.ScaleUpThreshold, c.ScaleDownThreshold)
	}
	return nil
}

// Team is the multi-tenant boundary. Teams are deactivated, never deleted,
// so the audit history they own stays intact.
type Team struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	OrganizationID string     `json:"organization_id"`
	OwnerID        string     `json:"owner_id"`
	Active         bool       `json:"active"`
	Config         TeamConfig `json:"config"`

	TasksCompleted   int     `json:"tasks_completed"`
	PerformanceScore float64 `json:"performance_score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the Team's field values.
func (t *Team) Validate() error {
	if !isValidUUID(t.ID) {
		return fmt.Errorf("invalid team ID: not a valid UUID")
	}
	if t.Name == "" {
		return fmt.Errorf("team name cannot be empty")
	}
	if t.OrganizationID == "" {
		return fmt.Errorf("organization ID cannot be empty")
	}
	if t.OwnerID == "" {
		return fmt.Errorf("owner ID cannot be empty")
	}
	return t.Config.Validate()
}

// Event is an append-only audit record for a task. Events are never mutated
// after creation.
type Event struct {
	ID          string            `json:"id"`
	TaskID      string            `json:"task_id"`
	Type        string            `json:"type"`
	Data        map[string]string `json:"data,omitempty"`
	TriggeredBy string            `json:"triggered_by"`
	At          time.Time         `json:"at"`
}

// Comment is a human annotation on a task, append-only like events.
type Comment struct {
	ID       string    `json:"id"`
	TaskID   string    `json:"task_id"`
	AuthorID string    `json:"author_id"`
	Content  string    `json:"content"`
	At       time.Time `json:"at"`
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
