// Package scheduler picks the expert instance for a task using a weighted
// blend of four signals: availability, specialization match, task priority,
// and historical performance. Selection is deterministic: the same snapshot
// always produces the same pick.
package scheduler

import (
	"strings"

	"github.com/mercatus/blackboard/pkg/blackboard"
)

// Scheduler scores and selects experts under a team's tuning weights.
type Scheduler struct {
	cfg blackboard.TeamConfig
}

// New creates a scheduler for the given team configuration.
func New(cfg blackboard.TeamConfig) *Scheduler {
	return &Scheduler{cfg: cfg}
}

// specializationBase is the score a candidate receives when the task names
// no required skills: any instance of the right role is a decent fit.
const specializationBase = 0.8

// Score computes the weighted suitability of an expert for a task, in [0,1].
// The caller is responsible for filtering out ineligible experts first;
// Score assumes the expert's role already matches.
func (s *Scheduler) Score(task *blackboard.Task, expert *blackboard.Expert) float64 {
	availability := 0.0
	if expert.MaxConcurrent > 0 {
		availability = float64(expert.Headroom()) / float64(expert.MaxConcurrent)
	}

	specialization := specializationMatch(task.RequiredSkills, expert.Specializations)
	priority := task.Priority.Weight()
	performance := expert.SuccessRate()

	wa := s.cfg.WeightAvailability
	ws := s.cfg.WeightSpecialization
	wp := s.cfg.WeightPriority
	wf := s.cfg.WeightPerformance
	total := wa + ws + wp + wf
	if total <= 0 {
		return 0
	}

	return (wa*availability + ws*specialization + wp*priority + wf*performance) / total
}

// Pick returns the best candidate for the task, or NoExpertError when no
// expert of the required role is active with headroom. Ties on score resolve
// toward the least-loaded expert, then the earliest-created, then the lowest
// ID, so concurrent schedulers agree on the winner.
func (s *Scheduler) Pick(task *blackboard.Task, experts []*blackboard.Expert) (*blackboard.Expert, error) {
	var best *blackboard.Expert
	var bestScore float64

	for _, e := range experts {
		if !Eligible(task, e) {
			continue
		}
		score := s.Score(task, e)
		if best == nil || score > bestScore || (score == bestScore && tieLess(e, best)) {
			best = e
			bestScore = score
		}
	}

	if best == nil {
		return nil, blackboard.NoExpertError(task.RequiredRole)
	}
	return best, nil
}

// Eligible reports whether the expert can take the task at all: role match,
// not offline, and headroom remaining. Busy experts with spare slots stay
// eligible; a full or offline expert never receives work.
func Eligible(task *blackboard.Task, expert *blackboard.Expert) bool {
	if expert.Role != task.RequiredRole {
		return false
	}
	if expert.Status == blackboard.ExpertStatusOffline {
		return false
	}
	return expert.Headroom() > 0
}

// specializationMatch returns the fraction of required skills the expert
// covers, case-insensitively. No required skills yields the base score.
func specializationMatch(required, offered []string) float64 {
	if len(required) == 0 {
		return specializationBase
	}
	have := make(map[string]struct{}, len(offered))
	for _, s := range offered {
		have[strings.ToLower(s)] = struct{}{}
	}
	matched := 0
	for _, s := range required {
		if _, ok := have[strings.ToLower(s)]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// tieLess orders equally scored experts: lowest current load first, then
// earliest created, then lexical ID.
func tieLess(a, b *blackboard.Expert) bool {
	if a.CurrentTasks != b.CurrentTasks {
		return a.CurrentTasks < b.CurrentTasks
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
