package blackboard

import (
	"sort"
	"strings"
)

// TaskFilter narrows task queries. Zero-value fields match everything.
type TaskFilter struct {
	Statuses   []TaskStatus
	Priorities []TaskPriority
	Roles      []ExpertRole
	ExpertIDs  []string // current assignment
	Platforms  []string
	Regions    []string
	Tags       []string // matches required skills
	Query      string   // substring match over title, description, goal
}

// Matches reports whether the task satisfies every populated criterion.
func (f TaskFilter) Matches(t *Task) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, t.Priority) {
		return false
	}
	if len(f.Roles) > 0 && !containsRole(f.Roles, t.RequiredRole) {
		return false
	}
	if len(f.ExpertIDs) > 0 {
		if t.Assignment == nil || !containsString(f.ExpertIDs, t.Assignment.ExpertID) {
			return false
		}
	}
	if len(f.Platforms) > 0 && !intersects(f.Platforms, t.Platforms) {
		return false
	}
	if len(f.Regions) > 0 && !intersects(f.Regions, t.Regions) {
		return false
	}
	if len(f.Tags) > 0 && !intersects(f.Tags, t.RequiredSkills) {
		return false
	}
	if f.Query != "" {
		haystack := strings.ToLower(t.Title + " " + t.Description + " " + t.Goal)
		if !strings.Contains(haystack, strings.ToLower(f.Query)) {
			return false
		}
	}
	return true
}

// SortTasks orders tasks for scheduling and display: priority rank descending,
// then creation time ascending, then ID for a total, reproducible order.
func SortTasks(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority.Rank() != tasks[j].Priority.Rank() {
			return tasks[i].Priority.Rank() > tasks[j].Priority.Rank()
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

func containsStatus(haystack []TaskStatus, needle TaskStatus) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsPriority(haystack []TaskPriority, needle TaskPriority) bool {
	for _, p := range haystack {
		if p == needle {
			return true
		}
	}
	return false
}

func containsRole(haystack []ExpertRole, needle ExpertRole) bool {
	for _, r := range haystack {
		if r == needle {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func intersects(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}
