package core

// ModuleID uniquely identifies a module. IDs are namespaced with dots,
// e.g. "approver.telegram" or "ledger.sqlite".
type ModuleID string

// ModuleInfo describes a registered module: its ID and a constructor that
// returns a fresh, unconfigured instance.
type ModuleInfo struct {
	// ID is the unique module identifier.
	ID ModuleID

	// New returns a new instance of the module. Each call must return a
	// value that does not share mutable state with previous instances.
	New func() Module
}

// Module is the minimal interface every module implements. Lifecycle
// behavior is added by implementing the optional interfaces in lifecycle.go.
type Module interface {
	ModuleInfo() ModuleInfo
}
