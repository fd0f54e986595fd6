package policy

import "errors"

var (
	// ErrUnknownServer is returned when a tier lookup names a server that is
	// not in the registry.
	ErrUnknownServer = errors.New("unknown server")
)
