// Package engine implements the Execution Engines (component D): the
// iterative step() engine and the pre-planned workflow engine, both
// sharing the Tool Runtime and Supervisor Protocol packages.
package engine

import (
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/meshcrew/groupchat/groupchat"
)

// ResolveWorkers returns the AgentConfig for every worker in group — the
// supervisor excluded — skipping any member id missing from agents (§6:
// "missing agents cause the group assembly step to skip that member with a
// warning; a group can run with a subset").
func ResolveWorkers(group groupchat.GroupConfig, agents map[string]groupchat.AgentConfig) []groupchat.AgentConfig {
	workers := make([]groupchat.AgentConfig, 0, len(group.MemberIDs))
	for _, id := range group.WorkerIDs() {
		cfg, ok := agents[id]
		if !ok {
			slog.Warn("skipping group member with no agent config", "group_id", group.GroupID, "agent_id", id)
			continue
		}
		workers = append(workers, cfg)
	}
	return workers
}

// FindWorkerByName looks a worker up by display name — the "next_agent" or
// "executor_agent" value the supervisor names — not by agent id. The
// supervisor itself is never a match: callers build workers from
// ResolveWorkers, which already excludes it.
func FindWorkerByName(workers []groupchat.AgentConfig, name string) (groupchat.AgentConfig, bool) {
	for _, w := range workers {
		if w.Name == name {
			return w, true
		}
	}
	return groupchat.AgentConfig{}, false
}

// TurnSerializer collapses overlapping turns for the same group into a
// single in-flight call (§5: "the reference behavior is to serialize
// same-group turns by requiring the client to wait for finish before
// issuing the next"). A second caller for a group already mid-turn waits
// for and shares the first caller's result rather than racing it.
type TurnSerializer struct {
	group singleflight.Group
}

// Do runs fn for groupID, or waits for and returns the result of an
// identical call already in flight.
func (s *TurnSerializer) Do(groupID string, fn func() (any, error)) (any, error, bool) {
	return s.group.Do(groupID, fn)
}
