// Package watch follows a team's task event stream.
package watch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mercatus/blackboard/internal/store/cache"
	"github.com/mercatus/blackboard/pkg/blackboard"
)

// Follow subscribes to a team's task events and invokes handler for each
// event until the context is cancelled. Malformed payloads are skipped.
func Follow(ctx context.Context, c *cache.Cache, teamID string, handler func(*blackboard.Event)) error {
	sub := c.SubscribeTaskEvents(ctx, teamID)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to task events: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event blackboard.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			handler(&event)
		}
	}
}
