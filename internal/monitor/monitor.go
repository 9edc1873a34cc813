// Package monitor watches team health: stuck tasks, queue backlog, and
// failure rates. Stuck tasks are failed through the board so their experts
// are released and the retry path stays available.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mercatus/blackboard/internal/board"
	"github.com/mercatus/blackboard/internal/store"
	"github.com/mercatus/blackboard/pkg/blackboard"
)

// AlertKind classifies a health alert. Alerts deduplicate on team+kind.
type AlertKind string

const (
	AlertStuckTask       AlertKind = "stuck_task"
	AlertQueueBacklog    AlertKind = "queue_backlog"
	AlertHighFailureRate AlertKind = "high_failure_rate"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one raised condition.
type Alert struct {
	TeamID   string    `json:"team_id"`
	Kind     AlertKind `json:"kind"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// HealthReport is the outcome of one Collect pass over a team.
type HealthReport struct {
	TeamID      string    `json:"team_id"`
	GeneratedAt time.Time `json:"generated_at"`
	OpenTasks   int       `json:"open_tasks"`
	FailedTasks int       `json:"failed_tasks"`
	StuckTasks  []string  `json:"stuck_tasks,omitempty"`
	Utilization float64   `json:"utilization"`
	Alerts      []Alert   `json:"alerts,omitempty"`
	Healthy     bool      `json:"healthy"`
}

const (
	// DefaultTaskTimeout is how long a task may sit in progress before it
	// is considered stuck and failed.
	DefaultTaskTimeout = 2 * time.Hour

	// DefaultDedupeWindow suppresses repeat alerts of the same kind for a
	// team within this window.
	DefaultDedupeWindow = 30 * time.Minute

	// backlogRatio of the queue limit at which the backlog alert fires.
	backlogRatio = 0.8

	// failureRateThreshold and failureRateMinTasks gate the failure alert.
	failureRateThreshold = 0.5
	failureRateMinTasks  = 4
)

// Monitor runs health passes over teams. Safe for concurrent use.
type Monitor struct {
	repo        *store.Hybrid
	board       *board.Board
	taskTimeout time.Duration
	dedupe      time.Duration
	now         func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time // teamID+kind -> last alert time
}

// Option tunes a Monitor.
type Option func(*Monitor)

// WithTaskTimeout overrides the stuck-task threshold.
func WithTaskTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.taskTimeout = d }
}

// WithDedupeWindow overrides the alert suppression window.
func WithDedupeWindow(d time.Duration) Option {
	return func(m *Monitor) { m.dedupe = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a monitor over the repository and board.
func New(repo *store.Hybrid, b *board.Board, opts ...Option) *Monitor {
	m := &Monitor{
		repo:        repo,
		board:       b,
		taskTimeout: DefaultTaskTimeout,
		dedupe:      DefaultDedupeWindow,
		now:         func() time.Time { return time.Now().UTC() },
		lastSeen:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Collect runs one health pass over a team. Stuck in-progress tasks are
// failed through the board (releasing their experts) and reported; backlog
// and failure-rate conditions raise alerts. Repeated alerts of one kind
// within the dedupe window are suppressed from the report but the
// underlying actions still run.
func (m *Monitor) Collect(ctx context.Context, teamID string) (*HealthReport, error) {
	team, err := m.repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	tasks, err := m.repo.ListTasks(ctx, teamID)
	if err != nil {
		return nil, err
	}
	experts, err := m.repo.ListExperts(ctx, teamID, "")
	if err != nil {
		return nil, err
	}

	now := m.now()
	report := &HealthReport{TeamID: teamID, GeneratedAt: now}

	pending, failed, terminal := 0, 0, 0
	for _, t := range tasks {
		switch {
		case t.Status == blackboard.TaskStatusPending:
			pending++
		case t.Status == blackboard.TaskStatusFailed:
			failed++
		case t.Status.Terminal():
			terminal++
		}
		if !t.Status.Terminal() {
			report.OpenTasks++
		}

		if t.Status == blackboard.TaskStatusInProgress && t.Assignment != nil &&
			t.Assignment.StartedAt != nil && now.Sub(*t.Assignment.StartedAt) > m.taskTimeout {
			reason := fmt.Sprintf("no progress for %s", now.Sub(*t.Assignment.StartedAt).Round(time.Minute))
			if err := m.board.FailTask(ctx, teamID, t.ID, reason); err != nil {
				return nil, fmt.Errorf("fail stuck task %s: %w", t.ID, err)
			}
			report.StuckTasks = append(report.StuckTasks, t.ID)
			failed++
			report.OpenTasks-- // the task just left the open set
		}
	}
	report.FailedTasks = failed

	current, capacity := 0, 0
	for _, e := range experts {
		current += e.CurrentTasks
		capacity += e.MaxConcurrent
	}
	if capacity > 0 {
		report.Utilization = float64(current) / float64(capacity)
	}

	held := make(map[AlertKind]bool)
	if len(report.StuckTasks) > 0 {
		held[AlertStuckTask] = true
		m.raise(report, AlertStuckTask, SeverityCritical, fmt.Sprintf("%d stuck tasks failed and released", len(report.StuckTasks)), now)
	}
	if limit := team.Config.TaskQueueLimit; limit > 0 && float64(pending) >= backlogRatio*float64(limit) {
		held[AlertQueueBacklog] = true
		m.raise(report, AlertQueueBacklog, SeverityWarning, fmt.Sprintf("%d pending tasks against queue limit %d", pending, limit), now)
	}
	if settled := failed + team.TasksCompleted; settled >= failureRateMinTasks {
		rate := float64(failed) / float64(settled)
		if rate >= failureRateThreshold {
			held[AlertHighFailureRate] = true
			m.raise(report, AlertHighFailureRate, SeverityCritical, fmt.Sprintf("failure rate %.2f over %d settled tasks", rate, settled), now)
		}
	}
	m.clearResolved(teamID, held)

	report.Healthy = len(report.Alerts) == 0 && len(report.StuckTasks) == 0
	return report, nil
}

// raise appends the alert unless one of the same kind fired for this team
// inside the dedupe window.
func (m *Monitor) raise(report *HealthReport, kind AlertKind, severity Severity, message string, now time.Time) {
	key := report.TeamID + ":" + string(kind)

	m.mu.Lock()
	last, seen := m.lastSeen[key]
	if seen && now.Sub(last) < m.dedupe {
		m.mu.Unlock()
		return
	}
	m.lastSeen[key] = now
	m.mu.Unlock()

	report.Alerts = append(report.Alerts, Alert{
		TeamID:   report.TeamID,
		Kind:     kind,
		Severity: severity,
		Message:  message,
		At:       now,
	})
}

// clearResolved forgets suppression state for conditions that no longer
// hold, so a condition that clears and then recurs alerts immediately.
func (m *Monitor) clearResolved(teamID string, held map[AlertKind]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, kind := range []AlertKind{AlertStuckTask, AlertQueueBacklog, AlertHighFailureRate} {
		if !held[kind] {
			delete(m.lastSeen, teamID+":"+string(kind))
		}
	}
}
