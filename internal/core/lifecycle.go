package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Lifecycle interfaces. A module opts into the stages it needs; LoadModule
// probes with type assertions and skips the rest. Order per module is
// Configure, Provision, Validate, then Start once every module loaded, and
// Stop in reverse on shutdown.

// Configurable receives the module's raw YAML section before provisioning.
// An approver module reads its chat id and token names here, a ledger
// module its path and retention.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner sets the module up: fill defaults, resolve credentials, and
// publish services other modules look up (an approver registers itself
// under "approver.channel", a ledger under "ledger.store").
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator confirms the provisioned state is usable. Runs after
// Provision and must not have side effects.
type Validator interface {
	Validate() error
}

// Starter begins background work: listeners, pollers, flush loops. Runs
// only after every module has provisioned and validated, so service
// lookups made in Start see the full registry.
type Starter interface {
	Start() error
}

// Stopper releases what Start acquired. Called in reverse start order with
// a deadline context.
type Stopper interface {
	Stop(ctx context.Context) error
}
