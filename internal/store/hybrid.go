package store

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/mercatus/blackboard/pkg/blackboard"
)

// Hybrid composes the durable store and the state cache behind one
// repository. Consistency rules:
//
//   - Writes commit to the store first; the cache is written only after the
//     store commit succeeds, so readers never observe uncommitted state.
//   - Cache write failures degrade to a log line; the store remains correct
//     and the entry is lazily repopulated on the next read.
//   - Reads are cache-first with store fallback and best-effort repopulation.
type Hybrid struct {
	store TaskStore
	cache StateCache
}

// NewHybrid creates the read-through/write-through coordinator.
func NewHybrid(store TaskStore, cache StateCache) *Hybrid {
	return &Hybrid{store: store, cache: cache}
}

// Store exposes the durable repository for operations with no cache path
// (assignments, events, comments, listings).
func (h *Hybrid) Store() TaskStore {
	return h.store
}

// CreateTeam persists the team and mirrors it to the cache.
func (h *Hybrid) CreateTeam(ctx context.Context, team *blackboard.Team) error {
	if err := h.store.CreateTeam(ctx, team); err != nil {
		return err
	}
	h.mirror(ctx, "team", team.ID, func() error { return h.cache.SetTeam(ctx, team) })
	return nil
}

// GetTeam reads cache-first, falling back to the store.
func (h *Hybrid) GetTeam(ctx context.Context, teamID string) (*blackboard.Team, error) {
	if team, err := h.cache.GetTeam(ctx, teamID); err == nil && team != nil {
		return team, nil
	}
	team, err := h.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	h.mirror(ctx, "team", teamID, func() error { return h.cache.SetTeam(ctx, team) })
	return team, nil
}

// UpdateTeam persists then refreshes the mirror.
func (h *Hybrid) UpdateTeam(ctx context.Context, team *blackboard.Team) error {
	if err := h.store.UpdateTeam(ctx, team); err != nil {
		return err
	}
	h.mirror(ctx, "team", team.ID, func() error { return h.cache.SetTeam(ctx, team) })
	return nil
}

// CreateExpert persists the expert and mirrors it.
func (h *Hybrid) CreateExpert(ctx context.Context, expert *blackboard.Expert) error {
	if err := h.store.CreateExpert(ctx, expert); err != nil {
		return err
	}
	h.mirror(ctx, "expert", expert.ID, func() error { return h.cache.SetExpert(ctx, expert) })
	return nil
}

// GetExpert reads cache-first, falling back to the store.
func (h *Hybrid) GetExpert(ctx context.Context, teamID, expertID string) (*blackboard.Expert, error) {
	if expert, err := h.cache.GetExpert(ctx, teamID, expertID); err == nil && expert != nil {
		return expert, nil
	}
	expert, err := h.store.GetExpert(ctx, expertID)
	if err != nil {
		return nil, err
	}
	h.mirror(ctx, "expert", expertID, func() error { return h.cache.SetExpert(ctx, expert) })
	return expert, nil
}

// UpdateExpert persists then refreshes the mirror.
func (h *Hybrid) UpdateExpert(ctx context.Context, expert *blackboard.Expert) error {
	if err := h.store.UpdateExpert(ctx, expert); err != nil {
		return err
	}
	h.mirror(ctx, "expert", expert.ID, func() error { return h.cache.SetExpert(ctx, expert) })
	return nil
}

// DeleteExpert removes the durable record, then drops the mirror.
func (h *Hybrid) DeleteExpert(ctx context.Context, teamID, expertID string) error {
	if err := h.store.DeleteExpert(ctx, expertID); err != nil {
		return err
	}
	h.mirror(ctx, "expert", expertID, func() error { return h.cache.InvalidateExpert(ctx, teamID, expertID) })
	return nil
}

// ListExperts always reads the durable store: listings drive scheduling
// decisions and must not act on expired cache entries.
func (h *Hybrid) ListExperts(ctx context.Context, teamID string, role blackboard.ExpertRole) ([]*blackboard.Expert, error) {
	return h.store.ListExperts(ctx, teamID, role)
}

// CreateTasks persists the batch atomically, then mirrors each task.
func (h *Hybrid) CreateTasks(ctx context.Context, tasks []*blackboard.Task) error {
	if err := h.store.CreateTasks(ctx, tasks); err != nil {
		return err
	}
	for _, task := range tasks {
		t := task
		h.mirror(ctx, "task", t.ID, func() error { return h.cache.SetTask(ctx, t) })
	}
	return nil
}

// GetTask reads cache-first, falling back to the store.
func (h *Hybrid) GetTask(ctx context.Context, teamID, taskID string) (*blackboard.Task, error) {
	if task, err := h.cache.GetTask(ctx, teamID, taskID); err == nil && task != nil {
		return task, nil
	}
	task, err := h.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	h.mirror(ctx, "task", taskID, func() error { return h.cache.SetTask(ctx, task) })
	return task, nil
}

// UpdateTask persists with optimistic concurrency, then refreshes the mirror.
// On ErrStaleState the cache entry is dropped so the next read reloads the
// winning revision from the store.
func (h *Hybrid) UpdateTask(ctx context.Context, task *blackboard.Task) error {
	if err := h.store.UpdateTask(ctx, task); err != nil {
		if errors.Is(err, blackboard.ErrStaleState) {
			h.mirror(ctx, "task", task.ID, func() error { return h.cache.InvalidateTask(ctx, task.TeamID, task.ID) })
		}
		return err
	}
	h.mirror(ctx, "task", task.ID, func() error { return h.cache.SetTask(ctx, task) })
	return nil
}

// ListTasks always reads the durable store for the same reason as ListExperts.
func (h *Hybrid) ListTasks(ctx context.Context, teamID string) ([]*blackboard.Task, error) {
	return h.store.ListTasks(ctx, teamID)
}

// mirror runs a cache write after a successful store commit. Failures are
// logged, never propagated: the cache is derived state.
func (h *Hybrid) mirror(ctx context.Context, entity, id string, fn func() error) {
	if err := fn(); err != nil {
		logEvent("cache_mirror_failed", map[string]any{
			"entity": entity,
			"id":     id,
			"error":  err.Error(),
		})
	}
}

// logEvent logs a structured event in JSON format.
func logEvent(eventType string, data map[string]any) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "warn"
	data["component"] = "store"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Store] failed to marshal log event: %v", err)
		return
	}
	log.Println(string(jsonData))
}
