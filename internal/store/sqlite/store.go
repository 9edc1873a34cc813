// Package sqlite implements the durable task store on a single SQLite
// database file. It is the source of truth: the Redis cache is only ever a
// mirror of rows committed here.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mercatus/blackboard/pkg/blackboard"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS teams (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	organization_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	config TEXT NOT NULL,
	tasks_completed INTEGER NOT NULL DEFAULT 0,
	performance_score REAL NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_teams_org ON teams(organization_id);

CREATE TABLE IF NOT EXISTS experts (
	id TEXT PRIMARY KEY,
	team_id TEXT NOT NULL,
	role TEXT NOT NULL,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	max_concurrent INTEGER NOT NULL,
	current_tasks INTEGER NOT NULL DEFAULT 0,
	specializations TEXT NOT NULL DEFAULT '[]',
	metrics TEXT NOT NULL DEFAULT '{}',
	leader INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	last_activity INTEGER NOT NULL,
	FOREIGN KEY(team_id) REFERENCES teams(id)
);
CREATE INDEX IF NOT EXISTS idx_experts_team_role ON experts(team_id, role);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	team_id TEXT NOT NULL,
	parent_task_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	goal TEXT NOT NULL,
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	required_role TEXT NOT NULL,
	assignment TEXT NULL,
	platforms TEXT NOT NULL DEFAULT '[]',
	regions TEXT NOT NULL DEFAULT '[]',
	content_types TEXT NOT NULL DEFAULT '[]',
	dependencies TEXT NOT NULL DEFAULT '[]',
	creator_id TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	max_retries INTEGER NOT NULL DEFAULT 0,
	failure_reason TEXT NOT NULL DEFAULT '',
	required_skills TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}',
	execution_log TEXT NOT NULL DEFAULT '[]',
	estimated_mins INTEGER NOT NULL DEFAULT 0,
	revision INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	due_at INTEGER NULL,
	FOREIGN KEY(team_id) REFERENCES teams(id)
);
CREATE INDEX IF NOT EXISTS idx_tasks_team_status ON tasks(team_id, status);

CREATE TABLE IF NOT EXISTS assignments (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	expert_id TEXT NOT NULL,
	assigned_by TEXT NOT NULL,
	assigned_at INTEGER NOT NULL,
	started_at INTEGER NULL,
	completed_at INTEGER NULL,
	estimated_mins INTEGER NOT NULL DEFAULT 0,
	actual_mins INTEGER NOT NULL DEFAULT 0,
	superseded INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY(task_id) REFERENCES tasks(id)
);
CREATE INDEX IF NOT EXISTS idx_assignments_task ON assignments(task_id, assigned_at);

CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	type TEXT NOT NULL,
	data TEXT NOT NULL DEFAULT '{}',
	triggered_by TEXT NOT NULL,
	at INTEGER NOT NULL,
	FOREIGN KEY(task_id) REFERENCES tasks(id)
);
CREATE INDEX IF NOT EXISTS idx_events_task ON events(task_id, at);

CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	author_id TEXT NOT NULL,
	content TEXT NOT NULL,
	at INTEGER NOT NULL,
	FOREIGN KEY(task_id) REFERENCES tasks(id)
);
CREATE INDEX IF NOT EXISTS idx_comments_task ON comments(task_id, at);
`

// Store is the SQLite-backed durable repository.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file and applies the pragmas the
// store depends on.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) CreateTeam(ctx context.Context, team *blackboard.Team) error {
	now := time.Now().UTC()
	if team.CreatedAt.IsZero() {
		team.CreatedAt = now
	}
	if team.UpdatedAt.IsZero() {
		team.UpdatedAt = now
	}

	config, err := json.Marshal(team.Config)
	if err != nil {
		return fmt.Errorf("marshal team config: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO teams(
			id, name, organization_id, owner_id, active, config,
			tasks_completed, performance_score, created_at, updated_at
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		team.ID, team.Name, team.OrganizationID, team.OwnerID, boolToInt(team.Active),
		string(config), team.TasksCompleted, team.PerformanceScore,
		team.CreatedAt.Unix(), team.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

func (s *Store) GetTeam(ctx context.Context, teamID string) (*blackboard.Team, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, organization_id, owner_id, active, config,
			tasks_completed, performance_score, created_at, updated_at
		FROM teams WHERE id = ?`,
		teamID,
	)
	team, err := scanTeam(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("team %s: %w", teamID, blackboard.ErrNotFound)
		}
		return nil, fmt.Errorf("get team: %w", err)
	}
	return team, nil
}

func (s *Store) UpdateTeam(ctx context.Context, team *blackboard.Team) error {
	team.UpdatedAt = time.Now().UTC()

	config, err := json.Marshal(team.Config)
	if err != nil {
		return fmt.Errorf("marshal team config: %w", err)
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE teams SET name = ?, active = ?, config = ?,
			tasks_completed = ?, performance_score = ?, updated_at = ?
		WHERE id = ?`,
		team.Name, boolToInt(team.Active), string(config),
		team.TasksCompleted, team.PerformanceScore, team.UpdatedAt.Unix(), team.ID,
	)
	if err != nil {
		return fmt.Errorf("update team: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update team affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("team %s: %w", team.ID, blackboard.ErrNotFound)
	}
	return nil
}

func (s *Store) ListTeams(ctx context.Context) ([]*blackboard.Team, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, name, organization_id, owner_id, active, config,
			tasks_completed, performance_score, created_at, updated_at
		FROM teams ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	result := make([]*blackboard.Team, 0)
	for rows.Next() {
		team, err := scanTeam(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		result = append(result, team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return result, nil
}

func (s *Store) CreateExpert(ctx context.Context, expert *blackboard.Expert) error {
	now := time.Now().UTC()
	if expert.CreatedAt.IsZero() {
		expert.CreatedAt = now
	}
	if expert.LastActivity.IsZero() {
		expert.LastActivity = now
	}

	specializations, metrics, err := marshalExpertColumns(expert)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO experts(
			id, team_id, role, name, status, max_concurrent, current_tasks,
			specializations, metrics, leader, created_at, last_activity
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expert.ID, expert.TeamID, string(expert.Role), expert.Name, string(expert.Status),
		expert.MaxConcurrent, expert.CurrentTasks, specializations, metrics,
		boolToInt(expert.Leader), expert.CreatedAt.Unix(), expert.LastActivity.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create expert: %w", err)
	}
	return nil
}

func (s *Store) GetExpert(ctx context.Context, expertID string) (*blackboard.Expert, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, team_id, role, name, status, max_concurrent, current_tasks,
			specializations, metrics, leader, created_at, last_activity
		FROM experts WHERE id = ?`,
		expertID,
	)
	expert, err := scanExpert(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("expert %s: %w", expertID, blackboard.ErrNotFound)
		}
		return nil, fmt.Errorf("get expert: %w", err)
	}
	return expert, nil
}

func (s *Store) UpdateExpert(ctx context.Context, expert *blackboard.Expert) error {
	expert.LastActivity = time.Now().UTC()

	specializations, metrics, err := marshalExpertColumns(expert)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE experts SET name = ?, status = ?, max_concurrent = ?, current_tasks = ?,
			specializations = ?, metrics = ?, leader = ?, last_activity = ?
		WHERE id = ?`,
		expert.Name, string(expert.Status), expert.MaxConcurrent, expert.CurrentTasks,
		specializations, metrics, boolToInt(expert.Leader), expert.LastActivity.Unix(),
		expert.ID,
	)
	if err != nil {
		return fmt.Errorf("update expert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update expert affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("expert %s: %w", expert.ID, blackboard.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteExpert(ctx context.Context, expertID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM experts WHERE id = ?`, expertID)
	if err != nil {
		return fmt.Errorf("delete expert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expert affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("expert %s: %w", expertID, blackboard.ErrNotFound)
	}
	return nil
}

func (s *Store) ListExperts(ctx context.Context, teamID string, role blackboard.ExpertRole) ([]*blackboard.Expert, error) {
	query := `SELECT id, team_id, role, name, status, max_concurrent, current_tasks,
		specializations, metrics, leader, created_at, last_activity
	FROM experts WHERE team_id = ?`
	args := []any{teamID}
	if role != "" {
		query += ` AND role = ?`
		args = append(args, string(role))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list experts: %w", err)
	}
	defer rows.Close()

	result := make([]*blackboard.Expert, 0)
	for rows.Next() {
		expert, err := scanExpert(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan expert: %w", err)
		}
		result = append(result, expert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate experts: %w", err)
	}
	return result, nil
}

// CreateTasks inserts the batch in one transaction. Workflow instantiation
// relies on the all-or-nothing behaviour.
func (s *Store) CreateTasks(ctx context.Context, tasks []*blackboard.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx create tasks: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	for _, task := range tasks {
		if task.CreatedAt.IsZero() {
			task.CreatedAt = now
		}
		if task.UpdatedAt.IsZero() {
			task.UpdatedAt = now
		}

		cols, err := marshalTaskColumns(task)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO tasks(
				id, team_id, parent_task_id, title, description, goal, status, priority,
				required_role, assignment, platforms, regions, content_types, dependencies,
				creator_id, retry_count, max_retries, failure_reason, required_skills,
				metadata, execution_log, estimated_mins, revision, created_at, updated_at, due_at
			) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID, task.TeamID, task.ParentTaskID, task.Title, task.Description, task.Goal,
			string(task.Status), string(task.Priority), string(task.RequiredRole),
			cols.assignment, cols.platforms, cols.regions, cols.contentTypes, cols.dependencies,
			task.CreatorID, task.RetryCount, task.MaxRetries, task.FailureReason,
			cols.requiredSkills, cols.metadata, cols.executionLog, task.EstimatedMins,
			task.Revision, task.CreatedAt.Unix(), task.UpdatedAt.Unix(), nullableUnix(task.DueAt),
		); err != nil {
			return fmt.Errorf("create task %s: %w", task.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create tasks: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, taskID string) (*blackboard.Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, team_id, parent_task_id, title, description, goal, status, priority,
			required_role, assignment, platforms, regions, content_types, dependencies,
			creator_id, retry_count, max_retries, failure_reason, required_skills,
			metadata, execution_log, estimated_mins, revision, created_at, updated_at, due_at
		FROM tasks WHERE id = ?`,
		taskID,
	)
	task, err := scanTask(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", taskID, blackboard.ErrNotFound)
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// UpdateTask writes the task only if the stored revision still equals
// task.Revision. On success the revision advances by one, both in the row
// and in the caller's struct.
func (s *Store) UpdateTask(ctx context.Context, task *blackboard.Task) error {
	task.UpdatedAt = time.Now().UTC()

	cols, err := marshalTaskColumns(task)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET
			title = ?, description = ?, goal = ?, status = ?, priority = ?,
			required_role = ?, assignment = ?, platforms = ?, regions = ?,
			content_types = ?, dependencies = ?, retry_count = ?, max_retries = ?,
			failure_reason = ?, required_skills = ?, metadata = ?, execution_log = ?,
			estimated_mins = ?, revision = revision + 1, updated_at = ?, due_at = ?
		WHERE id = ? AND revision = ?`,
		task.Title, task.Description, task.Goal, string(task.Status), string(task.Priority),
		string(task.RequiredRole), cols.assignment, cols.platforms, cols.regions,
		cols.contentTypes, cols.dependencies, task.RetryCount, task.MaxRetries,
		task.FailureReason, cols.requiredSkills, cols.metadata, cols.executionLog,
		task.EstimatedMins, task.UpdatedAt.Unix(), nullableUnix(task.DueAt),
		task.ID, task.Revision,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task affected rows: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE id = ?`, task.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check task existence: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("task %s: %w", task.ID, blackboard.ErrNotFound)
		}
		return fmt.Errorf("task %s at revision %d: %w", task.ID, task.Revision, blackboard.ErrStaleState)
	}
	task.Revision++
	return nil
}

func (s *Store) ListTasks(ctx context.Context, teamID string) ([]*blackboard.Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, team_id, parent_task_id, title, description, goal, status, priority,
			required_role, assignment, platforms, regions, content_types, dependencies,
			creator_id, retry_count, max_retries, failure_reason, required_skills,
			metadata, execution_log, estimated_mins, revision, created_at, updated_at, due_at
		FROM tasks WHERE team_id = ? ORDER BY created_at ASC, id ASC`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	result := make([]*blackboard.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		result = append(result, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return result, nil
}

func (s *Store) AppendAssignment(ctx context.Context, a *blackboard.TaskAssignment) error {
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO assignments(
			id, task_id, expert_id, assigned_by, assigned_at, started_at,
			completed_at, estimated_mins, actual_mins, superseded
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			actual_mins = excluded.actual_mins,
			superseded = excluded.superseded`,
		a.ID, a.TaskID, a.ExpertID, a.AssignedBy, a.AssignedAt.Unix(),
		nullableUnix(a.StartedAt), nullableUnix(a.CompletedAt),
		a.EstimatedMins, a.ActualMins, boolToInt(a.Superseded),
	)
	if err != nil {
		return fmt.Errorf("append assignment: %w", err)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, taskID string) ([]*blackboard.TaskAssignment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, task_id, expert_id, assigned_by, assigned_at, started_at,
			completed_at, estimated_mins, actual_mins, superseded
		FROM assignments WHERE task_id = ? ORDER BY assigned_at ASC, id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	result := make([]*blackboard.TaskAssignment, 0)
	for rows.Next() {
		var a blackboard.TaskAssignment
		var assignedAt int64
		var started, completed sql.NullInt64
		var superseded int
		if err := rows.Scan(
			&a.ID, &a.TaskID, &a.ExpertID, &a.AssignedBy, &assignedAt,
			&started, &completed, &a.EstimatedMins, &a.ActualMins, &superseded,
		); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		a.AssignedAt = unixToTime(assignedAt)
		a.StartedAt = int64ToTimePtr(started)
		a.CompletedAt = int64ToTimePtr(completed)
		a.Superseded = superseded != 0
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return result, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *blackboard.Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	data, err := json.Marshal(orEmptyMap(e.Data))
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO events(id, task_id, type, data, triggered_by, at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		e.ID, e.TaskID, e.Type, string(data), e.TriggeredBy, e.At.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, taskID string) ([]*blackboard.Event, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, task_id, type, data, triggered_by, at
		FROM events WHERE task_id = ? ORDER BY at ASC, id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	result := make([]*blackboard.Event, 0)
	for rows.Next() {
		var e blackboard.Event
		var data string
		var at int64
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Type, &data, &e.TriggeredBy, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
		e.At = unixToTime(at)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return result, nil
}

func (s *Store) AppendComment(ctx context.Context, c *blackboard.Comment) error {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO comments(id, task_id, author_id, content, at)
		VALUES(?, ?, ?, ?, ?)`,
		c.ID, c.TaskID, c.AuthorID, c.Content, c.At.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append comment: %w", err)
	}
	return nil
}

func (s *Store) ListComments(ctx context.Context, taskID string) ([]*blackboard.Comment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, task_id, author_id, content, at
		FROM comments WHERE task_id = ? ORDER BY at ASC, id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	result := make([]*blackboard.Comment, 0)
	for rows.Next() {
		var c blackboard.Comment
		var at int64
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Content, &at); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.At = unixToTime(at)
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return result, nil
}

type taskColumns struct {
	assignment     any
	platforms      string
	regions        string
	contentTypes   string
	dependencies   string
	requiredSkills string
	metadata       string
	executionLog   string
}

func marshalTaskColumns(task *blackboard.Task) (taskColumns, error) {
	var cols taskColumns

	if task.Assignment != nil {
		raw, err := json.Marshal(task.Assignment)
		if err != nil {
			return cols, fmt.Errorf("marshal assignment: %w", err)
		}
		cols.assignment = string(raw)
	}

	lists := []struct {
		name string
		dst  *string
		src  any
	}{
		{"platforms", &cols.platforms, orEmptySlice(task.Platforms)},
		{"regions", &cols.regions, orEmptySlice(task.Regions)},
		{"content_types", &cols.contentTypes, orEmptySlice(task.ContentTypes)},
		{"dependencies", &cols.dependencies, orEmptyDeps(task.Dependencies)},
		{"required_skills", &cols.requiredSkills, orEmptySlice(task.RequiredSkills)},
		{"metadata", &cols.metadata, orEmptyMap(task.Metadata)},
		{"execution_log", &cols.executionLog, orEmptySlice(task.ExecutionLog)},
	}
	for _, col := range lists {
		raw, err := json.Marshal(col.src)
		if err != nil {
			return cols, fmt.Errorf("marshal %s: %w", col.name, err)
		}
		*col.dst = string(raw)
	}
	return cols, nil
}

func marshalExpertColumns(expert *blackboard.Expert) (string, string, error) {
	specializations, err := json.Marshal(orEmptySlice(expert.Specializations))
	if err != nil {
		return "", "", fmt.Errorf("marshal specializations: %w", err)
	}
	metrics, err := json.Marshal(orEmptyMetrics(expert.Metrics))
	if err != nil {
		return "", "", fmt.Errorf("marshal metrics: %w", err)
	}
	return string(specializations), string(metrics), nil
}

type scanFn func(dest ...any) error

func scanTeam(scan scanFn) (*blackboard.Team, error) {
	var t blackboard.Team
	var active int
	var config string
	var created, updated int64
	if err := scan(
		&t.ID, &t.Name, &t.OrganizationID, &t.OwnerID, &active, &config,
		&t.TasksCompleted, &t.PerformanceScore, &created, &updated,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(config), &t.Config); err != nil {
		return nil, fmt.Errorf("unmarshal team config: %w", err)
	}
	t.Active = active != 0
	t.CreatedAt = unixToTime(created)
	t.UpdatedAt = unixToTime(updated)
	return &t, nil
}

func scanExpert(scan scanFn) (*blackboard.Expert, error) {
	var e blackboard.Expert
	var role, status, specializations, metrics string
	var leader int
	var created, activity int64
	if err := scan(
		&e.ID, &e.TeamID, &role, &e.Name, &status, &e.MaxConcurrent, &e.CurrentTasks,
		&specializations, &metrics, &leader, &created, &activity,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(specializations), &e.Specializations); err != nil {
		return nil, fmt.Errorf("unmarshal specializations: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &e.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	e.Role = blackboard.ExpertRole(role)
	e.Status = blackboard.ExpertStatus(status)
	e.Leader = leader != 0
	e.CreatedAt = unixToTime(created)
	e.LastActivity = unixToTime(activity)
	return &e, nil
}

func scanTask(scan scanFn) (*blackboard.Task, error) {
	var t blackboard.Task
	var status, priority, role string
	var assignment sql.NullString
	var platforms, regions, contentTypes, dependencies, skills, metadata, executionLog string
	var created, updated int64
	var due sql.NullInt64
	if err := scan(
		&t.ID, &t.TeamID, &t.ParentTaskID, &t.Title, &t.Description, &t.Goal,
		&status, &priority, &role, &assignment, &platforms, &regions, &contentTypes,
		&dependencies, &t.CreatorID, &t.RetryCount, &t.MaxRetries, &t.FailureReason,
		&skills, &metadata, &executionLog, &t.EstimatedMins, &t.Revision,
		&created, &updated, &due,
	); err != nil {
		return nil, err
	}

	if assignment.Valid && assignment.String != "" {
		var a blackboard.TaskAssignment
		if err := json.Unmarshal([]byte(assignment.String), &a); err != nil {
			return nil, fmt.Errorf("unmarshal assignment: %w", err)
		}
		t.Assignment = &a
	}
	jsonCols := []struct {
		name string
		raw  string
		dst  any
	}{
		{"platforms", platforms, &t.Platforms},
		{"regions", regions, &t.Regions},
		{"content_types", contentTypes, &t.ContentTypes},
		{"dependencies", dependencies, &t.Dependencies},
		{"required_skills", skills, &t.RequiredSkills},
		{"metadata", metadata, &t.Metadata},
		{"execution_log", executionLog, &t.ExecutionLog},
	}
	for _, col := range jsonCols {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", col.name, err)
		}
	}

	t.Status = blackboard.TaskStatus(status)
	t.Priority = blackboard.TaskPriority(priority)
	t.RequiredRole = blackboard.ExpertRole(role)
	t.CreatedAt = unixToTime(created)
	t.UpdatedAt = unixToTime(updated)
	t.DueAt = int64ToTimePtr(due)
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyDeps(d []blackboard.TaskDependency) []blackboard.TaskDependency {
	if d == nil {
		return []blackboard.TaskDependency{}
	}
	return d
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptyMetrics(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}

func unixToTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Unix()
}

func int64ToTimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid || v.Int64 <= 0 {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
