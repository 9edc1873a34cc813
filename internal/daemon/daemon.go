// Package daemon runs the background loops that keep teams moving: task
// scheduling, health passes, auto-scaling, and workflow advancement, plus
// the HTTP surface for health checks and dashboards.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/mercatus/blackboard/internal/board"
	"github.com/mercatus/blackboard/internal/config"
	"github.com/mercatus/blackboard/internal/depgraph"
	"github.com/mercatus/blackboard/internal/monitor"
	"github.com/mercatus/blackboard/internal/store"
	"github.com/mercatus/blackboard/internal/store/cache"
	"github.com/mercatus/blackboard/internal/team"
	"github.com/mercatus/blackboard/internal/workflow"
	"github.com/mercatus/blackboard/pkg/blackboard"
)

// Daemon owns the background loops. One daemon serves every team in the
// store; each pass walks the active teams.
type Daemon struct {
	cfg       *config.Config
	repo      *store.Hybrid
	mirror    *cache.Cache
	board     *board.Board
	manager   *team.Manager
	monitor   *monitor.Monitor
	workflows *workflow.Engine
}

// New wires a daemon from its collaborators.
func New(cfg *config.Config, repo *store.Hybrid, mirror *cache.Cache, b *board.Board, mgr *team.Manager, mon *monitor.Monitor, wf *workflow.Engine) *Daemon {
	return &Daemon{
		cfg:       cfg,
		repo:      repo,
		mirror:    mirror,
		board:     b,
		manager:   mgr,
		monitor:   mon,
		workflows: wf,
	}
}

// Run starts every loop and the HTTP server, and blocks until the context
// is cancelled or a loop fails terminally. Pass errors inside a tick are
// retried with backoff and then logged; they never bring the daemon down.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.loop(ctx, "schedule", d.cfg.Daemon.ScheduleInterval(), d.SchedulePass) })
	g.Go(func() error { return d.loop(ctx, "monitor", d.cfg.Daemon.MonitorInterval(), d.MonitorPass) })
	g.Go(func() error { return d.loop(ctx, "scaling", d.cfg.Daemon.ScalingInterval(), d.ScalingPass) })
	g.Go(func() error { return d.loop(ctx, "advance", d.cfg.Daemon.AdvanceInterval(), d.AdvancePass) })
	g.Go(func() error { return d.serve(ctx) })

	return g.Wait()
}

// loop ticks the pass at the given cadence until shutdown. Ticks never
// overlap: a slow pass delays the next tick rather than stacking.
func (d *Daemon) loop(ctx context.Context, name string, interval time.Duration, pass func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logEvent("loop_stopped", map[string]any{"loop": name})
			return nil
		case <-ticker.C:
			if err := pass(ctx); err != nil {
				logEvent("pass_failed", map[string]any{"loop": name, "error": err.Error()})
			}
		}
	}
}

// activeTeams lists the teams a pass should visit.
func (d *Daemon) activeTeams(ctx context.Context) ([]*blackboard.Team, error) {
	teams, err := d.repo.Store().ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	active := teams[:0]
	for _, t := range teams {
		if t.Active {
			active = append(active, t)
		}
	}
	return active, nil
}

// retry runs op with capped exponential backoff, giving transient store or
// cache hiccups a chance to clear inside the tick.
func retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(op, policy)
}

// SchedulePass hands ready pending tasks to experts for every active team.
// This is what picks queued work back up once a completion or a scale-up
// frees capacity.
func (d *Daemon) SchedulePass(ctx context.Context) error {
	teams, err := d.activeTeams(ctx)
	if err != nil {
		return err
	}
	for _, t := range teams {
		teamID := t.ID
		err := retry(ctx, func() error { return d.scheduleTeam(ctx, teamID) })
		if err != nil {
			return fmt.Errorf("schedule pass for team %s: %w", teamID, err)
		}
	}
	return nil
}

// scheduleTeam assigns the team's ready tasks, critical path first so the
// longest remaining dependency chain keeps moving. Tasks that find no
// expert or hit a capacity limit wait for the next tick.
func (d *Daemon) scheduleTeam(ctx context.Context, teamID string) error {
	ready, err := d.board.ReadyTasks(ctx, teamID)
	if err != nil {
		return err
	}
	if len(ready) == 0 {
		return nil
	}

	all, err := d.repo.ListTasks(ctx, teamID)
	if err != nil {
		return err
	}
	chain, _ := depgraph.New(all).CriticalPath()
	critical := make(map[string]bool, len(chain))
	for _, t := range chain {
		critical[t.ID] = true
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return critical[ready[i].ID] && !critical[ready[j].ID]
	})

	assigned := 0
	for _, task := range ready {
		if _, err := d.board.AutoAssignTask(ctx, teamID, task.ID, "scheduler"); err != nil {
			if errors.Is(err, blackboard.ErrNoAvailableExpert) || errors.Is(err, blackboard.ErrCapacityExceeded) {
				continue
			}
			return err
		}
		assigned++
	}
	if assigned > 0 {
		logEvent("tasks_scheduled", map[string]any{"team_id": teamID, "tasks": assigned})
	}
	return nil
}

// MonitorPass runs one health pass over every active team.
func (d *Daemon) MonitorPass(ctx context.Context) error {
	teams, err := d.activeTeams(ctx)
	if err != nil {
		return err
	}
	for _, t := range teams {
		var report *monitor.HealthReport
		err := retry(ctx, func() error {
			var err error
			report, err = d.monitor.Collect(ctx, t.ID)
			return err
		})
		if err != nil {
			return fmt.Errorf("health pass for team %s: %w", t.ID, err)
		}
		if !report.Healthy {
			logEvent("team_unhealthy", map[string]any{
				"team_id":     t.ID,
				"alerts":      len(report.Alerts),
				"stuck_tasks": len(report.StuckTasks),
			})
		}
	}
	return nil
}

// ScalingPass applies auto-scaling recommendations for every active team.
func (d *Daemon) ScalingPass(ctx context.Context) error {
	teams, err := d.activeTeams(ctx)
	if err != nil {
		return err
	}
	for _, t := range teams {
		err := retry(ctx, func() error {
			applied, err := d.manager.ApplyScaling(ctx, t.ID)
			if err != nil {
				return err
			}
			for _, decision := range applied {
				logEvent("scaling_applied", map[string]any{
					"team_id": t.ID,
					"role":    string(decision.Role),
					"action":  string(decision.Action),
					"reason":  decision.Reason,
				})
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("scaling pass for team %s: %w", t.ID, err)
		}
	}
	return nil
}

// AdvancePass pushes every live workflow instance forward: stages whose
// dependencies just completed get experts assigned.
func (d *Daemon) AdvancePass(ctx context.Context) error {
	teams, err := d.activeTeams(ctx)
	if err != nil {
		return err
	}
	for _, t := range teams {
		instances, err := d.liveInstances(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("advance pass for team %s: %w", t.ID, err)
		}
		for _, instanceID := range instances {
			id := instanceID
			err := retry(ctx, func() error {
				advanced, err := d.workflows.Advance(ctx, t.ID, id)
				if err != nil {
					return err
				}
				if advanced > 0 {
					logEvent("workflow_advanced", map[string]any{
						"team_id":     t.ID,
						"instance_id": id,
						"stages":      advanced,
					})
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("advance instance %s: %w", id, err)
			}
		}
	}
	return nil
}

// liveInstances collects the workflow instances that still have open work.
func (d *Daemon) liveInstances(ctx context.Context, teamID string) ([]string, error) {
	tasks, err := d.repo.ListTasks(ctx, teamID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var instances []string
	for _, t := range tasks {
		if t.Status.Terminal() {
			continue
		}
		id := t.Metadata[workflow.MetaInstance]
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		instances = append(instances, id)
	}
	return instances, nil
}

// logEvent emits a structured log line to stderr.
func logEvent(event string, fields map[string]any) {
	entry := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"component": "daemon",
		"event":     event,
	}
	for k, v := range fields {
		entry[k] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, `{"component":"daemon","event":%q}`+"\n", event)
		return
	}
	fmt.Fprintln(os.Stderr, string(data))
}
