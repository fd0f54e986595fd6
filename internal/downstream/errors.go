package downstream

import "errors"

var (
	// ErrConnect is returned when the downstream server cannot be launched
	// or the handshake fails. Fatal at startup.
	ErrConnect = errors.New("downstream connection failed")

	// ErrCall is returned when a forwarded operation fails on an
	// established connection. Never fatal.
	ErrCall = errors.New("downstream call failed")
)
