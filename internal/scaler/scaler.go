// Package scaler produces advisory scaling decisions from per-role
// utilization and backlog. Decisions are recommendations only; the team
// manager decides whether to act on them.
package scaler

import (
	"context"
	"fmt"

	"github.com/mercatus/blackboard/internal/store"
	"github.com/mercatus/blackboard/pkg/blackboard"
)

// Action is the direction of a scaling recommendation.
type Action string

const (
	ScaleUp   Action = "scale_up"
	ScaleDown Action = "scale_down"
)

// Decision is one advisory recommendation for one role.
type Decision struct {
	TeamID string               `json:"team_id"`
	Role   blackboard.ExpertRole `json:"role"`
	Action Action               `json:"action"`
	// Delta is the recommended instance count change, always positive.
	Delta  int     `json:"delta"`
	Reason string  `json:"reason"`
	// Utilization is the role's load ratio at evaluation time.
	Utilization float64 `json:"utilization"`
}

// Scaler evaluates teams against their configured thresholds.
type Scaler struct {
	repo *store.Hybrid
}

// New creates a scaler over the hybrid repository.
func New(repo *store.Hybrid) *Scaler {
	return &Scaler{repo: repo}
}

// Evaluate inspects one team and returns scaling recommendations. The
// planner role is never scaled: it is the singleton team leader. Teams with
// auto-scaling disabled produce no decisions.
func (s *Scaler) Evaluate(ctx context.Context, teamID string) ([]Decision, error) {
	team, err := s.repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !team.Config.AutoScaling || !team.Active {
		return nil, nil
	}

	experts, err := s.repo.ListExperts(ctx, teamID, "")
	if err != nil {
		return nil, err
	}
	tasks, err := s.repo.ListTasks(ctx, teamID)
	if err != nil {
		return nil, err
	}

	pendingByRole := make(map[blackboard.ExpertRole]int)
	for _, t := range tasks {
		if t.Status == blackboard.TaskStatusPending {
			pendingByRole[t.RequiredRole]++
		}
	}

	var decisions []Decision
	for _, role := range []blackboard.ExpertRole{blackboard.RoleExecutor, blackboard.RoleEvaluator} {
		current, capacity, count := 0, 0, 0
		for _, e := range experts {
			if e.Role != role {
				continue
			}
			count++
			current += e.CurrentTasks
			capacity += e.MaxConcurrent
		}

		roleCap := team.Config.MaxForRole(role)
		pending := pendingByRole[role]

		if count == 0 {
			if pending > 0 && roleCap > 0 {
				decisions = append(decisions, Decision{
					TeamID: teamID, Role: role, Action: ScaleUp, Delta: 1,
					Reason:      fmt.Sprintf("%d pending %s tasks with no instances", pending, role),
					Utilization: 1,
				})
			}
			continue
		}

		utilization := float64(current) / float64(capacity)
		switch {
		case utilization >= team.Config.ScaleUpThreshold && count < roleCap:
			decisions = append(decisions, Decision{
				TeamID: teamID, Role: role, Action: ScaleUp, Delta: 1,
				Reason:      fmt.Sprintf("utilization %.2f >= %.2f", utilization, team.Config.ScaleUpThreshold),
				Utilization: utilization,
			})
		case utilization <= team.Config.ScaleDownThreshold && count > 1 && pending == 0:
			decisions = append(decisions, Decision{
				TeamID: teamID, Role: role, Action: ScaleDown, Delta: 1,
				Reason:      fmt.Sprintf("utilization %.2f <= %.2f with empty backlog", utilization, team.Config.ScaleDownThreshold),
				Utilization: utilization,
			})
		}
	}
	return decisions, nil
}
