package cache

import "fmt"

// Redis key pattern helpers
//
// All keys and Pub/Sub channels are namespaced by instance name so multiple
// deployments can safely coexist on a single Redis server.
//
// Key pattern: blackboard:{instance}:{team_id}:{entity}:{uuid}
// Channel pattern: blackboard:{instance}:{team_id}:task_events

// TaskKey returns the cache key for a task.
func TaskKey(instanceName, teamID, taskID string) string {
	return fmt.Sprintf("blackboard:%s:%s:task:%s", instanceName, teamID, taskID)
}

// ExpertKey returns the cache key for an expert.
func ExpertKey(instanceName, teamID, expertID string) string {
	return fmt.Sprintf("blackboard:%s:%s:expert:%s", instanceName, teamID, expertID)
}

// TeamKey returns the cache key for a team.
func TeamKey(instanceName, teamID string) string {
	return fmt.Sprintf("blackboard:%s:team:%s", instanceName, teamID)
}

// TaskEventsChannel returns the Pub/Sub channel for a team's task events.
func TaskEventsChannel(instanceName, teamID string) string {
	return fmt.Sprintf("blackboard:%s:%s:task_events", instanceName, teamID)
}
