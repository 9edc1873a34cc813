// Package resolver maps short ID prefixes to full UUIDs so operators can
// reference teams and tasks without pasting whole identifiers.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mercatus/blackboard/internal/store"
	"github.com/mercatus/blackboard/pkg/blackboard"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
// Set to 6 characters to balance usability with collision avoidance.
const MinShortIDLength = 6

// ResolveTeamID resolves a short ID prefix to a full team UUID. A full UUID
// is verified and returned as-is; a prefix must match exactly one team.
func ResolveTeamID(ctx context.Context, repo *store.Hybrid, shortID string) (string, error) {
	if isFullUUID(shortID) {
		if _, err := repo.GetTeam(ctx, shortID); err != nil {
			return "", err
		}
		return shortID, nil
	}
	if len(shortID) < MinShortIDLength {
		return "", blackboard.ValidationErrorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	teams, err := repo.Store().ListTeams(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to search for team: %w", err)
	}
	var matches []string
	for _, t := range teams {
		if strings.HasPrefix(t.ID, shortID) {
			matches = append(matches, t.ID)
		}
	}
	return pick(shortID, matches)
}

// ResolveTaskID resolves a short ID prefix to a full task UUID within a team.
func ResolveTaskID(ctx context.Context, repo *store.Hybrid, teamID, shortID string) (string, error) {
	if isFullUUID(shortID) {
		if _, err := repo.GetTask(ctx, teamID, shortID); err != nil {
			return "", err
		}
		return shortID, nil
	}
	if len(shortID) < MinShortIDLength {
		return "", blackboard.ValidationErrorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	tasks, err := repo.ListTasks(ctx, teamID)
	if err != nil {
		return "", fmt.Errorf("failed to search for task: %w", err)
	}
	var matches []string
	for _, t := range tasks {
		if strings.HasPrefix(t.ID, shortID) {
			matches = append(matches, t.ID)
		}
	}
	return pick(shortID, matches)
}

func isFullUUID(s string) bool {
	return len(s) == 36 && strings.Count(s, "-") == 4
}

func pick(shortID string, matches []string) (string, error) {
	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates nothing matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("nothing found matching '%s'", e.ShortID)
}

// Is reports the sentinel so callers can use errors.Is against the store's
// not-found taxonomy.
func (e *NotFoundError) Is(target error) bool {
	return target == blackboard.ErrNotFound
}

// AmbiguousError indicates multiple records matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d records", e.ShortID, len(e.Matches))
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
