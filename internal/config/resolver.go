package config

import (
	"fmt"
	"slices"
)

// Resolve returns a sorted list of module IDs from the configuration.
// The deterministic order ensures consistent module loading.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ResolveServer picks the downstream server to proxy. A non-empty override
// (the serve command argument) wins over the configured default; with no
// default and a single defined server, that server is used. Unknown
// identifiers are rejected here, before anything is launched.
func ResolveServer(cfg *Config, override string) (string, ServerConfig, error) {
	id := override
	if id == "" {
		id = cfg.Server
	}
	if id == "" && len(cfg.Servers) == 1 {
		for only := range cfg.Servers {
			id = only
		}
	}

	srv, ok := cfg.Servers[id]
	if !ok {
		return "", ServerConfig{}, fmt.Errorf("config: unknown server %q", id)
	}
	return id, srv, nil
}
