// Package depgraph reasons about the hard-dependency DAG between tasks:
// readiness gating, cycle rejection at creation time, and critical-path
// analysis over estimated durations.
package depgraph

import (
	"sort"

	"github.com/mercatus/blackboard/pkg/blackboard"
)

// Graph is an immutable view over a team's tasks. Build a fresh graph from
// the store for each decision; graphs are cheap and never mutated.
type Graph struct {
	tasks map[string]*blackboard.Task
	order []string
}

// New builds a graph from a task snapshot. Later duplicates of the same ID
// win, matching store list order.
func New(tasks []*blackboard.Task) *Graph {
	g := &Graph{tasks: make(map[string]*blackboard.Task, len(tasks))}
	for _, t := range tasks {
		if _, seen := g.tasks[t.ID]; !seen {
			g.order = append(g.order, t.ID)
		}
		g.tasks[t.ID] = t
	}
	return g
}

// Task returns the task with the given ID, or nil.
func (g *Graph) Task(taskID string) *blackboard.Task {
	return g.tasks[taskID]
}

// IsReady reports whether every hard dependency of the task is completed.
// Soft dependencies never gate readiness. A hard dependency on a task the
// graph does not contain blocks readiness: an unknown prerequisite can never
// be proven complete.
func (g *Graph) IsReady(task *blackboard.Task) bool {
	for _, dep := range task.HardDependencies() {
		prereq, ok := g.tasks[dep.TaskID]
		if !ok || prereq.Status != blackboard.TaskStatusCompleted {
			return false
		}
	}
	return true
}

// ReadyTasks returns the pending tasks whose hard dependencies are all
// completed, in scheduling order (priority, then age, then ID).
func (g *Graph) ReadyTasks() []*blackboard.Task {
	var ready []*blackboard.Task
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Status == blackboard.TaskStatusPending && g.IsReady(t) {
			ready = append(ready, t)
		}
	}
	blackboard.SortTasks(ready)
	return ready
}

// Dependents returns the tasks holding a hard dependency on the given task,
// in insertion order. Used to re-evaluate readiness after a completion.
func (g *Graph) Dependents(taskID string) []*blackboard.Task {
	var out []*blackboard.Task
	for _, id := range g.order {
		t := g.tasks[id]
		for _, dep := range t.HardDependencies() {
			if dep.TaskID == taskID {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// CheckAcyclic verifies that adding the incoming tasks to the existing
// snapshot keeps the hard-dependency graph acyclic. Returns a CycleError
// naming the cycle on failure. Call this before persisting any batch; the
// store never holds a cyclic graph.
func CheckAcyclic(existing, incoming []*blackboard.Task) error {
	combined := make([]*blackboard.Task, 0, len(existing)+len(incoming))
	combined = append(combined, existing...)
	combined = append(combined, incoming...)
	g := New(combined)

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.tasks))

	var stack []string
	var walk func(id string) []string
	walk = func(id string) []string {
		state[id] = visiting
		stack = append(stack, id)
		t := g.tasks[id]
		for _, dep := range t.HardDependencies() {
			next, ok := g.tasks[dep.TaskID]
			if !ok {
				continue // dangling reference blocks readiness, not creation
			}
			switch state[next.ID] {
			case visiting:
				// Slice the stack from the first occurrence to close the cycle.
				for i, sid := range stack {
					if sid == next.ID {
						return append(append([]string{}, stack[i:]...), next.ID)
					}
				}
			case unvisited:
				if cycle := walk(next.ID); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, id := range g.order {
		if state[id] == unvisited {
			if cycle := walk(id); cycle != nil {
				return blackboard.CycleError(cycle)
			}
		}
	}
	return nil
}

// PathNode is one step on a critical path.
type PathNode struct {
	Task *blackboard.Task
	// TotalMins is the estimated minutes of this task plus the heaviest
	// chain of prerequisites beneath it.
	TotalMins int
}

// CriticalPath returns the heaviest chain of hard dependencies in the graph,
// ordered prerequisite-first, along with its total estimated minutes.
// Ties are broken toward higher priority, then earlier creation, then ID, so
// repeated calls over the same snapshot return the same path. Terminal tasks
// (completed or cancelled) contribute no remaining work and are skipped.
func (g *Graph) CriticalPath() ([]*blackboard.Task, int) {
	memo := make(map[string]int, len(g.tasks))
	nextHop := make(map[string]string, len(g.tasks))

	var weigh func(id string) int
	weigh = func(id string) int {
		if v, ok := memo[id]; ok {
			return v
		}
		memo[id] = 0 // cycle guard; creation-time checks keep the graph acyclic
		t := g.tasks[id]
		if t.Status.Terminal() {
			memo[id] = 0
			return 0
		}

		best := 0
		bestID := ""
		for _, dep := range t.HardDependencies() {
			prereq, ok := g.tasks[dep.TaskID]
			if !ok || prereq.Status.Terminal() {
				continue
			}
			w := weigh(prereq.ID)
			switch {
			case w > best || bestID == "":
				best, bestID = w, prereq.ID
			case w == best && chainLess(prereq, g.tasks[bestID]):
				bestID = prereq.ID
			}
		}
		if bestID != "" {
			nextHop[id] = bestID
		}
		memo[id] = best + t.EstimatedMins
		return memo[id]
	}

	var rootIDs []string
	for _, id := range g.order {
		rootIDs = append(rootIDs, id)
	}
	sort.SliceStable(rootIDs, func(i, j int) bool {
		return chainLess(g.tasks[rootIDs[i]], g.tasks[rootIDs[j]])
	})

	bestRoot := ""
	bestTotal := 0
	for _, id := range rootIDs {
		if g.tasks[id].Status.Terminal() {
			continue
		}
		if total := weigh(id); total > bestTotal {
			bestTotal = total
			bestRoot = id
		}
	}
	if bestRoot == "" {
		return nil, 0
	}

	// Follow the heaviest chain down, then reverse so prerequisites lead.
	var chain []*blackboard.Task
	for id := bestRoot; id != ""; id = nextHop[id] {
		chain = append(chain, g.tasks[id])
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, bestTotal
}

// chainLess orders tasks for deterministic tie-breaking: higher priority
// first, then earlier creation, then ID.
func chainLess(a, b *blackboard.Task) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra > rb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
