package cert

import "crypto/ed25519"

// Sign returns the Ed25519 signature of a module identity string
// (e.g. "github.com/example/approver@v1.0.0"). The hex-encoded result is
// what xtollgate build checks via --plugin-sig.
func Sign(privateKey ed25519.PrivateKey, moduleIdentity string) []byte {
	return ed25519.Sign(privateKey, identityDigest(moduleIdentity))
}
