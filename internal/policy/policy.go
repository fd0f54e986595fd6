// Package policy classifies tool invocations into risk tiers based on the
// static per-server gating configuration.
package policy

import (
	"fmt"
	"slices"
	"strings"
)

// Tier defines how an invocation of a tool is handled.
type Tier string

const (
	// TierBlocked refuses the invocation outright.
	TierBlocked Tier = "blocked"

	// TierHighRisk defers the invocation behind out-of-band approval.
	TierHighRisk Tier = "high_risk"

	// TierNormal forwards the invocation immediately.
	TierNormal Tier = "normal"
)

// ServerPolicy holds the gating lists declared for one downstream server.
type ServerPolicy struct {
	// HighRisk lists tool names that require approval before execution.
	HighRisk []string

	// Blocked lists tool names that are always refused.
	Blocked []string
}

// Registry resolves risk tiers for the configured servers. It is immutable
// after construction; lookups are pure and never touch the network.
type Registry struct {
	servers map[string]serverSets
}

type serverSets struct {
	highRisk map[string]struct{}
	blocked  map[string]struct{}
}

// NewRegistry builds a Registry from per-server policies. Names are
// whitespace-trimmed and deduplicated; empty names are dropped.
func NewRegistry(policies map[string]ServerPolicy) *Registry {
	servers := make(map[string]serverSets, len(policies))
	for id, p := range policies {
		servers[id] = serverSets{
			highRisk: toSet(p.HighRisk),
			blocked:  toSet(p.Blocked),
		}
	}
	return &Registry{servers: servers}
}

// Classify returns the risk tier for toolName on the given server. A name
// present in both lists is blocked. An unknown server identifier is a
// configuration fault surfaced to the caller.
func (r *Registry) Classify(serverID, toolName string) (Tier, error) {
	sets, ok := r.servers[serverID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownServer, serverID)
	}

	name := strings.TrimSpace(toolName)
	if _, blocked := sets.blocked[name]; blocked {
		return TierBlocked, nil
	}
	if _, high := sets.highRisk[name]; high {
		return TierHighRisk, nil
	}
	return TierNormal, nil
}

// HighRiskTools returns the sorted high-risk tool names for the given server.
func (r *Registry) HighRiskTools(serverID string) ([]string, error) {
	sets, ok := r.servers[serverID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, serverID)
	}

	names := make([]string, 0, len(sets.highRisk))
	for name := range sets.highRisk {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}
