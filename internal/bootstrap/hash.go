// Package bootstrap decides when the running tollgate binary no longer
// matches the configured plugin set and hands off to a freshly built one.
package bootstrap

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// BuildHash digests a plugin list ("module@version" strings) into the
// SHA-256 hex value stamped into the binary at build time. Sorting first
// makes the digest independent of configuration order.
func BuildHash(plugins []string) string {
	sorted := slices.Clone(plugins)
	slices.Sort(sorted)

	h := sha256.New()
	for _, p := range sorted {
		h.Write([]byte(p))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
