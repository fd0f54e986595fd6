package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrEndpointBlocked is returned when an outbound endpoint URL is rejected.
var ErrEndpointBlocked = errors.New("endpoint URL not allowed")

// ValidateEndpoint enforces the transport rule for outbound control-plane
// endpoints (approver services, heartbeat targets, webhook registrations):
// https anywhere, plain http only to loopback hosts. Approval decisions and
// status reports must not travel an interceptable link.
func ValidateEndpoint(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEndpointBlocked, err)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host in %q", ErrEndpointBlocked, rawURL)
	}

	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopbackHost(host) {
			return nil
		}
		return fmt.Errorf("%w: plain http to %s (loopback only)", ErrEndpointBlocked, host)
	default:
		return fmt.Errorf("%w: scheme %q", ErrEndpointBlocked, parsed.Scheme)
	}
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
