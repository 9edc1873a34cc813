// Package cache implements the Redis state cache. Entries are JSON-encoded
// mirrors of durable rows with a bounded TTL; the cache never holds state the
// SQLite store has not committed.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mercatus/blackboard/pkg/blackboard"
)

// DefaultTTL bounds how stale a cache entry can be before readers fall back
// to the durable store.
const DefaultTTL = 5 * time.Minute

// Cache provides namespaced Redis operations for board state.
// All keys are prefixed with the instance name so multiple deployments can
// share a Redis server. The cache is safe for concurrent use.
type Cache struct {
	rdb          *redis.Client
	instanceName string
	ttl          time.Duration
}

// New creates a cache for the given instance. A non-positive ttl falls back
// to DefaultTTL.
func New(redisOpts *redis.Options, instanceName string, ttl time.Duration) (*Cache, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
		ttl:          ttl,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetTask mirrors a task into the cache.
func (c *Cache) SetTask(ctx context.Context, task *blackboard.Task) error {
	return c.set(ctx, TaskKey(c.instanceName, task.TeamID, task.ID), task)
}

// GetTask retrieves a cached task. Returns (nil, nil) on a miss.
func (c *Cache) GetTask(ctx context.Context, teamID, taskID string) (*blackboard.Task, error) {
	var task blackboard.Task
	found, err := c.get(ctx, TaskKey(c.instanceName, teamID, taskID), &task)
	if err != nil || !found {
		return nil, err
	}
	return &task, nil
}

// InvalidateTask drops a task's cache entry.
func (c *Cache) InvalidateTask(ctx context.Context, teamID, taskID string) error {
	return c.del(ctx, TaskKey(c.instanceName, teamID, taskID))
}

// SetExpert mirrors an expert into the cache.
func (c *Cache) SetExpert(ctx context.Context, expert *blackboard.Expert) error {
	return c.set(ctx, ExpertKey(c.instanceName, expert.TeamID, expert.ID), expert)
}

// GetExpert retrieves a cached expert. Returns (nil, nil) on a miss.
func (c *Cache) GetExpert(ctx context.Context, teamID, expertID string) (*blackboard.Expert, error) {
	var expert blackboard.Expert
	found, err := c.get(ctx, ExpertKey(c.instanceName, teamID, expertID), &expert)
	if err != nil || !found {
		return nil, err
	}
	return &expert, nil
}

// InvalidateExpert drops an expert's cache entry.
func (c *Cache) InvalidateExpert(ctx context.Context, teamID, expertID string) error {
	return c.del(ctx, ExpertKey(c.instanceName, teamID, expertID))
}

// SetTeam mirrors a team into the cache.
func (c *Cache) SetTeam(ctx context.Context, team *blackboard.Team) error {
	return c.set(ctx, TeamKey(c.instanceName, team.ID), team)
}

// GetTeam retrieves a cached team. Returns (nil, nil) on a miss.
func (c *Cache) GetTeam(ctx context.Context, teamID string) (*blackboard.Team, error) {
	var team blackboard.Team
	found, err := c.get(ctx, TeamKey(c.instanceName, teamID), &team)
	if err != nil || !found {
		return nil, err
	}
	return &team, nil
}

// PublishTaskEvent publishes a task lifecycle event to the team's event
// channel so external observers (dashboards, experts) see changes without
// polling the store.
func (c *Cache) PublishTaskEvent(ctx context.Context, teamID string, event *blackboard.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	channel := TaskEventsChannel(c.instanceName, teamID)
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish task event: %w", err)
	}
	return nil
}

// SubscribeTaskEvents subscribes to a team's task event channel. The caller
// must close the returned PubSub when done.
func (c *Cache) SubscribeTaskEvents(ctx context.Context, teamID string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, TaskEventsChannel(c.instanceName, teamID))
}

func (c *Cache) set(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

func (c *Cache) get(ctx context.Context, key string, v any) (bool, error) {
	payload, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return true, nil
}

func (c *Cache) del(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}
