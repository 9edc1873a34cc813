// Package board implements the task board facade: every task lifecycle
// operation goes through here so state transitions, expert load accounting,
// audit events, and cache publication stay consistent.
package board

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mercatus/blackboard/internal/depgraph"
	"github.com/mercatus/blackboard/internal/scheduler"
	"github.com/mercatus/blackboard/internal/store"
	"github.com/mercatus/blackboard/pkg/blackboard"
)

// EventPublisher pushes task lifecycle events to external observers.
// Publication is best-effort: a publish failure never rolls back a committed
// transition.
type EventPublisher interface {
	PublishTaskEvent(ctx context.Context, teamID string, event *blackboard.Event) error
}

// Board coordinates all task state changes for all teams. Mutating
// operations on a team serialize on a per-team lock so expert load counters
// and task transitions cannot interleave within a process; cross-process
// races are caught by the store's revision check.
type Board struct {
	repo   *store.Hybrid
	events EventPublisher

	mu        sync.Mutex
	teamLocks map[string]*sync.Mutex
}

// New creates a board over the hybrid repository.
func New(repo *store.Hybrid, events EventPublisher) *Board {
	return &Board{
		repo:      repo,
		events:    events,
		teamLocks: make(map[string]*sync.Mutex),
	}
}

func (b *Board) lockTeam(teamID string) func() {
	b.mu.Lock()
	lock, ok := b.teamLocks[teamID]
	if !ok {
		lock = &sync.Mutex{}
		b.teamLocks[teamID] = lock
	}
	b.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// CreateTask validates and persists a single new task. The task enters the
// board pending; call AutoAssignTask to hand it to an expert.
func (b *Board) CreateTask(ctx context.Context, task *blackboard.Task) error {
	return b.CreateTaskBatch(ctx, []*blackboard.Task{task})
}

// CreateTaskBatch persists a group of tasks atomically: either every task is
// accepted or none is. Used directly by workflow instantiation, where
// partially created workflows would strand dependents.
func (b *Board) CreateTaskBatch(ctx context.Context, tasks []*blackboard.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	teamID := tasks[0].TeamID

	for _, task := range tasks {
		if task.Status == "" {
			task.Status = blackboard.TaskStatusPending
		}
		if task.TeamID != teamID {
			return blackboard.ValidationErrorf("batch spans teams %s and %s", teamID, task.TeamID)
		}
		if err := task.Validate(); err != nil {
			return fmt.Errorf("%w: %s", blackboard.ErrValidation, err)
		}
		if task.Status != blackboard.TaskStatusPending {
			return blackboard.ValidationErrorf("new task %s must be pending, got %s", task.ID, task.Status)
		}
	}

	unlock := b.lockTeam(teamID)
	defer unlock()

	team, err := b.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if !team.Active {
		return blackboard.ValidationErrorf("team %s is deactivated", teamID)
	}

	existing, err := b.repo.ListTasks(ctx, teamID)
	if err != nil {
		return err
	}

	open := 0
	for _, t := range existing {
		if !t.Status.Terminal() {
			open++
		}
	}
	if open+len(tasks) > team.Config.TaskQueueLimit {
		return blackboard.CapacityError("task queue limit %d reached", team.Config.TaskQueueLimit)
	}

	if err := depgraph.CheckAcyclic(existing, tasks); err != nil {
		return err
	}

	if err := b.repo.CreateTasks(ctx, tasks); err != nil {
		return err
	}
	for _, task := range tasks {
		b.recordEvent(ctx, task, "task_created", task.CreatorID, map[string]string{
			"priority": string(task.Priority),
			"role":     string(task.RequiredRole),
		})
	}
	return nil
}

// GetTask fetches a task, cache-first.
func (b *Board) GetTask(ctx context.Context, teamID, taskID string) (*blackboard.Task, error) {
	return b.repo.GetTask(ctx, teamID, taskID)
}

// SearchTasks returns the team's tasks matching the filter, in scheduling
// order.
func (b *Board) SearchTasks(ctx context.Context, teamID string, filter blackboard.TaskFilter) ([]*blackboard.Task, error) {
	tasks, err := b.repo.ListTasks(ctx, teamID)
	if err != nil {
		return nil, err
	}
	var out []*blackboard.Task
	for _, t := range tasks {
		if filter.Matches(t) {
			out = append(out, t)
		}
	}
	blackboard.SortTasks(out)
	return out, nil
}

// TasksByStatus returns the team's tasks in one status, in scheduling order.
func (b *Board) TasksByStatus(ctx context.Context, teamID string, status blackboard.TaskStatus) ([]*blackboard.Task, error) {
	if err := status.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", blackboard.ErrValidation, err)
	}
	return b.SearchTasks(ctx, teamID, blackboard.TaskFilter{Statuses: []blackboard.TaskStatus{status}})
}

// ReadyTasks returns pending tasks whose hard dependencies are complete.
func (b *Board) ReadyTasks(ctx context.Context, teamID string) ([]*blackboard.Task, error) {
	tasks, err := b.repo.ListTasks(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return depgraph.New(tasks).ReadyTasks(), nil
}

// AutoAssignTask selects the best available expert for a pending task and
// moves it to assigned. Fails with ErrNoAvailableExpert when no instance of
// the required role has headroom, with ErrCapacityExceeded when the team is
// already running its concurrent-task limit, and with ErrValidation when the
// task's hard dependencies are not complete.
func (b *Board) AutoAssignTask(ctx context.Context, teamID, taskID, assignedBy string) (*blackboard.Expert, error) {
	unlock := b.lockTeam(teamID)
	defer unlock()

	team, err := b.repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	task, err := b.repo.GetTask(ctx, teamID, taskID)
	if err != nil {
		return nil, err
	}
	if err := blackboard.CheckTransition(task.Status, blackboard.TaskStatusAssigned); err != nil {
		return nil, err
	}

	all, err := b.repo.ListTasks(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !depgraph.New(all).IsReady(task) {
		return nil, blackboard.ValidationErrorf("task %s has incomplete hard dependencies", taskID)
	}

	running := 0
	for _, t := range all {
		if t.Status == blackboard.TaskStatusAssigned || t.Status == blackboard.TaskStatusInProgress {
			running++
		}
	}
	if running >= team.Config.ConcurrentTaskLimit {
		return nil, blackboard.CapacityError("concurrent task limit %d reached", team.Config.ConcurrentTaskLimit)
	}

	experts, err := b.repo.ListExperts(ctx, teamID, task.RequiredRole)
	if err != nil {
		return nil, err
	}
	expert, err := scheduler.New(team.Config).Pick(task, experts)
	if err != nil {
		return nil, err
	}

	if err := b.assign(ctx, task, expert, assignedBy); err != nil {
		return nil, err
	}
	return expert, nil
}

// assign binds a task to an expert. Caller holds the team lock and has
// verified the transition into assigned is legal.
func (b *Board) assign(ctx context.Context, task *blackboard.Task, expert *blackboard.Expert, assignedBy string) error {
	now := time.Now().UTC()

	if old := task.Assignment; old != nil && !old.Superseded {
		old.Superseded = true
		if err := b.repo.Store().AppendAssignment(ctx, &blackboard.TaskAssignment{
			ID: old.ID, TaskID: old.TaskID, ExpertID: old.ExpertID,
			AssignedBy: old.AssignedBy, AssignedAt: old.AssignedAt,
			StartedAt: old.StartedAt, CompletedAt: old.CompletedAt,
			EstimatedMins: old.EstimatedMins, ActualMins: old.ActualMins,
			Superseded: true,
		}); err != nil {
			logBoardEvent("assignment_history_failed", map[string]any{"task_id": task.ID, "error": err.Error()})
		}
	}

	assignment := &blackboard.TaskAssignment{
		ID:            uuid.NewString(),
		TaskID:        task.ID,
		ExpertID:      expert.ID,
		AssignedBy:    assignedBy,
		AssignedAt:    now,
		EstimatedMins: task.EstimatedMins,
	}

	task.Status = blackboard.TaskStatusAssigned
	task.Assignment = assignment
	if err := b.repo.UpdateTask(ctx, task); err != nil {
		return err
	}

	expert.CurrentTasks++
	if expert.Headroom() == 0 {
		expert.Status = blackboard.ExpertStatusBusy
	}
	if err := b.repo.UpdateExpert(ctx, expert); err != nil {
		return err
	}

	if err := b.repo.Store().AppendAssignment(ctx, assignment); err != nil {
		logBoardEvent("assignment_history_failed", map[string]any{"task_id": task.ID, "error": err.Error()})
	}
	b.recordEvent(ctx, task, "task_assigned", assignedBy, map[string]string{
		"expert_id": expert.ID,
	})
	return nil
}

// ReassignTask moves an assigned (not yet started) task to a different
// expert, superseding the current assignment. The current expert is released
// first so it never counts against its own replacement. Used when an expert
// is drained or removed.
func (b *Board) ReassignTask(ctx context.Context, teamID, taskID, reassignedBy string) (*blackboard.Expert, error) {
	unlock := b.lockTeam(teamID)
	defer unlock()

	team, err := b.repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	task, err := b.repo.GetTask(ctx, teamID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != blackboard.TaskStatusAssigned || task.Assignment == nil {
		return nil, blackboard.ValidationErrorf("task %s is not awaiting an expert swap", taskID)
	}

	previousExpert := task.Assignment.ExpertID
	experts, err := b.repo.ListExperts(ctx, teamID, task.RequiredRole)
	if err != nil {
		return nil, err
	}
	candidates := experts[:0]
	for _, e := range experts {
		if e.ID != previousExpert {
			candidates = append(candidates, e)
		}
	}
	expert, err := scheduler.New(team.Config).Pick(task, candidates)
	if err != nil {
		return nil, err
	}

	b.releaseExpert(ctx, teamID, task, "")
	if err := b.assign(ctx, task, expert, reassignedBy); err != nil {
		return nil, err
	}
	return expert, nil
}

// StartTask moves an assigned task to in-progress. Only the assigned expert
// may start its task.
func (b *Board) StartTask(ctx context.Context, teamID, taskID, expertID string) error {
	unlock := b.lockTeam(teamID)
	defer unlock()

	task, err := b.repo.GetTask(ctx, teamID, taskID)
	if err != nil {
		return err
	}
	if err := blackboard.CheckTransition(task.Status, blackboard.TaskStatusInProgress); err != nil {
		return err
	}
	if task.Assignment == nil || task.Assignment.ExpertID != expertID {
		return blackboard.ValidationErrorf("task %s is not assigned to expert %s", taskID, expertID)
	}

	now := time.Now().UTC()
	task.Status = blackboard.TaskStatusInProgress
	task.Assignment.StartedAt = &now
	task.ExecutionLog = append(task.ExecutionLog, fmt.Sprintf("%s started by %s", now.Format(time.RFC3339), expertID))
	if err := b.repo.UpdateTask(ctx, task); err != nil {
		return err
	}

	b.recordEvent(ctx, task, "task_started", expertID, nil)
	return nil
}

// CompleteTask finishes an in-progress task. The expert's load and success
// metrics and the team's completion counters update in the same operation.
func (b *Board) CompleteTask(ctx context.Context, teamID, taskID, result string) error {
	unlock := b.lockTeam(teamID)
	defer unlock()

	task, err := b.repo.GetTask(ctx, teamID, taskID)
	if err != nil {
		return err
	}
	if err := blackboard.CheckTransition(task.Status, blackboard.TaskStatusCompleted); err != nil {
		return err
	}

	now := time.Now().UTC()
	task.Status = blackboard.TaskStatusCompleted
	if result != "" {
		if task.Metadata == nil {
			task.Metadata = make(map[string]string)
		}
		task.Metadata["result"] = result
	}
	if a := task.Assignment; a != nil {
		a.CompletedAt = &now
		if a.StartedAt != nil {
			a.ActualMins = int(now.Sub(*a.StartedAt).Minutes())
		}
	}
	task.ExecutionLog = append(task.ExecutionLog, fmt.Sprintf("%s completed", now.Format(time.RFC3339)))
	if err := b.repo.UpdateTask(ctx, task); err != nil {
		return err
	}
	if a := task.Assignment; a != nil {
		if err := b.repo.Store().AppendAssignment(ctx, a); err != nil {
			logBoardEvent("assignment_history_failed", map[string]any{"task_id": task.ID, "error": err.Error()})
		}
	}

	expertID := b.releaseExpert(ctx, teamID, task, "completed_tasks")

	team, err := b.repo.GetTeam(ctx, teamID)
	if err == nil {
		team.TasksCompleted++
		if err := b.repo.UpdateTeam(ctx, team); err != nil {
			logBoardEvent("team_counter_failed", map[string]any{"team_id": teamID, "error": err.Error()})
		}
	}

	b.recordEvent(ctx, task, "task_completed", expertID, nil)
	return nil
}

// FailTask marks an in-progress task failed with a reason. The expert's load
// drops and its failure metric increments; the task stays failed until
// RescheduleTask or CancelTask moves it on.
func (b *Board) FailTask(ctx context.Context, teamID, taskID, reason string) error {
	unlock := b.lockTeam(teamID)
	defer unlock()
	return b.failLocked(ctx, teamID, taskID, reason)
}

func (b *Board) failLocked(ctx context.Context, teamID, taskID, reason string) error {
	task, err := b.repo.GetTask(ctx, teamID, taskID)
	if err != nil {
		return err
	}
	if err := blackboard.CheckTransition(task.Status, blackboard.TaskStatusFailed); err != nil {
		return err
	}

	now := time.Now().UTC()
	task.Status = blackboard.TaskStatusFailed
	task.FailureReason = reason
	task.ExecutionLog = append(task.ExecutionLog, fmt.Sprintf("%s failed: %s", now.Format(time.RFC3339), reason))
	if err := b.repo.UpdateTask(ctx, task); err != nil {
		return err
	}

	expertID := b.releaseExpert(ctx, teamID, task, "failed_tasks")
	b.recordEvent(ctx, task, "task_failed", expertID, map[string]string{"reason": reason})
	if task.RetryCount >= task.MaxRetries {
		b.recordEvent(ctx, task, "task_escalated", expertID, map[string]string{
			"reason": "retry budget exhausted",
		})
	}
	return nil
}

// ReviseTask sends an in-progress task back to pending for another attempt,
// consuming one retry. When the retry budget is already spent the task fails
// instead, with the revision reason recorded.
func (b *Board) ReviseTask(ctx context.Context, teamID, taskID, reason string) error {
	unlock := b.lockTeam(teamID)
	defer unlock()

	task, err := b.repo.GetTask(ctx, teamID, taskID)
	if err != nil {
		return err
	}
	if task.RetriesExhausted() {
		return b.failLocked(ctx, teamID, taskID, fmt.Sprintf("retries exhausted; last revision request: %s", reason))
	}
	if err := blackboard.CheckTransition(task.Status, blackboard.TaskStatusPending); err != nil {
		return err
	}

	now := time.Now().UTC()
	task.Status = blackboard.TaskStatusPending
	task.RetryCount++
	if a := task.Assignment; a != nil {
		a.Superseded = true
	}
	task.ExecutionLog = append(task.ExecutionLog, fmt.Sprintf("%s revision requested: %s", now.Format(time.RFC3339), reason))
	if err := b.repo.UpdateTask(ctx, task); err != nil {
		return err
	}

	expertID := b.releaseExpert(ctx, teamID, task, "")
	b.recordEvent(ctx, task, "task_revision_requested", expertID, map[string]string{"reason": reason})
	return nil
}

// RescheduleTask retries a failed task by assigning it to a fresh expert,
// consuming one retry. The previous assignment is superseded, never erased.
func (b *Board) RescheduleTask(ctx context.Context, teamID, taskID, rescheduledBy string) (*blackboard.Expert, error) {
	unlock := b.lockTeam(teamID)
	defer unlock()

	team, err := b.repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	task, err := b.repo.GetTask(ctx, teamID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != blackboard.TaskStatusFailed {
		return nil, blackboard.TransitionError(task.Status, blackboard.TaskStatusAssigned)
	}
	if task.RetriesExhausted() {
		return nil, blackboard.ValidationErrorf("task %s has exhausted its %d retries", taskID, task.MaxRetries)
	}

	experts, err := b.repo.ListExperts(ctx, teamID, task.RequiredRole)
	if err != nil {
		return nil, err
	}
	expert, err := scheduler.New(team.Config).Pick(task, experts)
	if err != nil {
		return nil, err
	}

	task.RetryCount++
	task.FailureReason = ""
	if err := b.assign(ctx, task, expert, rescheduledBy); err != nil {
		return nil, err
	}
	b.recordEvent(ctx, task, "task_rescheduled", rescheduledBy, map[string]string{
		"retry": fmt.Sprintf("%d", task.RetryCount),
	})
	return expert, nil
}

// CancelTask withdraws a task from any non-terminal state. An expert working
// the task is released. Cancelling a completed or cancelled task fails.
func (b *Board) CancelTask(ctx context.Context, teamID, taskID, cancelledBy string) error {
	unlock := b.lockTeam(teamID)
	defer unlock()

	task, err := b.repo.GetTask(ctx, teamID, taskID)
	if err != nil {
		return err
	}
	if err := blackboard.CheckTransition(task.Status, blackboard.TaskStatusCancelled); err != nil {
		return err
	}

	releasing := task.Status == blackboard.TaskStatusAssigned || task.Status == blackboard.TaskStatusInProgress

	now := time.Now().UTC()
	task.Status = blackboard.TaskStatusCancelled
	task.ExecutionLog = append(task.ExecutionLog, fmt.Sprintf("%s cancelled by %s", now.Format(time.RFC3339), cancelledBy))
	if err := b.repo.UpdateTask(ctx, task); err != nil {
		return err
	}

	var expertID string
	if releasing {
		expertID = b.releaseExpert(ctx, teamID, task, "")
	}
	b.recordEvent(ctx, task, "task_cancelled", cancelledBy, map[string]string{"expert_id": expertID})
	return nil
}

// UpdateTaskStatus is the generic transition entry point for callers that
// hold a target status rather than an intent. It routes to the specific
// operation so side effects (load accounting, metrics, history) never get
// skipped.
func (b *Board) UpdateTaskStatus(ctx context.Context, teamID, taskID string, status blackboard.TaskStatus, actor, detail string) error {
	switch status {
	case blackboard.TaskStatusAssigned:
		_, err := b.AutoAssignTask(ctx, teamID, taskID, actor)
		return err
	case blackboard.TaskStatusInProgress:
		return b.StartTask(ctx, teamID, taskID, actor)
	case blackboard.TaskStatusCompleted:
		return b.CompleteTask(ctx, teamID, taskID, detail)
	case blackboard.TaskStatusFailed:
		return b.FailTask(ctx, teamID, taskID, detail)
	case blackboard.TaskStatusPending:
		return b.ReviseTask(ctx, teamID, taskID, detail)
	case blackboard.TaskStatusCancelled:
		return b.CancelTask(ctx, teamID, taskID, actor)
	default:
		return fmt.Errorf("%w: unknown status %q", blackboard.ErrValidation, status)
	}
}

// AddComment appends a comment to a task.
func (b *Board) AddComment(ctx context.Context, teamID, taskID, authorID, content string) (*blackboard.Comment, error) {
	if content == "" {
		return nil, blackboard.ValidationErrorf("comment content cannot be empty")
	}
	if _, err := b.repo.GetTask(ctx, teamID, taskID); err != nil {
		return nil, err
	}
	comment := &blackboard.Comment{
		ID:       uuid.NewString(),
		TaskID:   taskID,
		AuthorID: authorID,
		Content:  content,
		At:       time.Now().UTC(),
	}
	if err := b.repo.Store().AppendComment(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// Comments lists a task's comments oldest-first.
func (b *Board) Comments(ctx context.Context, taskID string) ([]*blackboard.Comment, error) {
	return b.repo.Store().ListComments(ctx, taskID)
}

// ExecutionLog returns the task's append-only execution log.
func (b *Board) ExecutionLog(ctx context.Context, teamID, taskID string) ([]string, error) {
	task, err := b.repo.GetTask(ctx, teamID, taskID)
	if err != nil {
		return nil, err
	}
	return task.ExecutionLog, nil
}

// Events lists a task's audit events oldest-first.
func (b *Board) Events(ctx context.Context, taskID string) ([]*blackboard.Event, error) {
	return b.repo.Store().ListEvents(ctx, taskID)
}

// Assignments lists a task's full assignment history oldest-first.
func (b *Board) Assignments(ctx context.Context, taskID string) ([]*blackboard.TaskAssignment, error) {
	return b.repo.Store().ListAssignments(ctx, taskID)
}

// TeamMetrics summarizes a team's workload and throughput.
type TeamMetrics struct {
	TeamID         string                        `json:"team_id"`
	TotalTasks     int                           `json:"total_tasks"`
	ByStatus       map[blackboard.TaskStatus]int `json:"by_status"`
	AvgActualMins  float64                       `json:"avg_actual_mins"`
	ExpertCount    int                           `json:"expert_count"`
	Utilization    float64                       `json:"utilization"`
	TasksCompleted int                           `json:"tasks_completed"`
}

// PerformanceMetrics computes the team's current workload summary from the
// durable store.
func (b *Board) PerformanceMetrics(ctx context.Context, teamID string) (*TeamMetrics, error) {
	team, err := b.repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	tasks, err := b.repo.ListTasks(ctx, teamID)
	if err != nil {
		return nil, err
	}
	experts, err := b.repo.ListExperts(ctx, teamID, "")
	if err != nil {
		return nil, err
	}

	m := &TeamMetrics{
		TeamID:         teamID,
		TotalTasks:     len(tasks),
		ByStatus:       make(map[blackboard.TaskStatus]int),
		ExpertCount:    len(experts),
		TasksCompleted: team.TasksCompleted,
	}

	totalMins, completedWithTimes := 0, 0
	for _, t := range tasks {
		m.ByStatus[t.Status]++
		if t.Status == blackboard.TaskStatusCompleted && t.Assignment != nil && t.Assignment.ActualMins > 0 {
			totalMins += t.Assignment.ActualMins
			completedWithTimes++
		}
	}
	if completedWithTimes > 0 {
		m.AvgActualMins = float64(totalMins) / float64(completedWithTimes)
	}

	current, capacity := 0, 0
	for _, e := range experts {
		current += e.CurrentTasks
		capacity += e.MaxConcurrent
	}
	if capacity > 0 {
		m.Utilization = float64(current) / float64(capacity)
	}
	return m, nil
}

// releaseExpert drops the assigned expert's load by one and bumps the named
// metric. Returns the expert ID for event attribution; failures degrade to a
// log line because the task transition has already committed.
func (b *Board) releaseExpert(ctx context.Context, teamID string, task *blackboard.Task, metric string) string {
	a := task.Assignment
	if a == nil {
		return ""
	}
	expert, err := b.repo.GetExpert(ctx, teamID, a.ExpertID)
	if err != nil {
		logBoardEvent("expert_release_failed", map[string]any{"expert_id": a.ExpertID, "error": err.Error()})
		return a.ExpertID
	}
	if expert.CurrentTasks > 0 {
		expert.CurrentTasks--
	}
	if expert.Status == blackboard.ExpertStatusBusy && expert.Headroom() > 0 {
		expert.Status = blackboard.ExpertStatusActive
	}
	if metric != "" {
		if expert.Metrics == nil {
			expert.Metrics = make(map[string]float64)
		}
		expert.Metrics[metric]++
	}
	if err := b.repo.UpdateExpert(ctx, expert); err != nil {
		logBoardEvent("expert_release_failed", map[string]any{"expert_id": a.ExpertID, "error": err.Error()})
	}
	return a.ExpertID
}

// recordEvent appends an audit event and publishes it. Both halves are
// best-effort relative to the already committed transition.
func (b *Board) recordEvent(ctx context.Context, task *blackboard.Task, eventType, triggeredBy string, data map[string]string) {
	event := &blackboard.Event{
		ID:          uuid.NewString(),
		TaskID:      task.ID,
		Type:        eventType,
		Data:        data,
		TriggeredBy: triggeredBy,
		At:          time.Now().UTC(),
	}
	if err := b.repo.Store().AppendEvent(ctx, event); err != nil {
		logBoardEvent("event_append_failed", map[string]any{"task_id": task.ID, "type": eventType, "error": err.Error()})
	}
	if b.events != nil {
		if err := b.events.PublishTaskEvent(ctx, task.TeamID, event); err != nil {
			logBoardEvent("event_publish_failed", map[string]any{"task_id": task.ID, "type": eventType, "error": err.Error()})
		}
	}
}

// logBoardEvent logs a structured event in JSON format.
func logBoardEvent(eventType string, data map[string]any) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "warn"
	data["component"] = "board"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Board] failed to marshal log event: %v", err)
		return
	}
	log.Println(string(jsonData))
}
