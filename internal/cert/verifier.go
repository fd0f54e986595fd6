// Package cert implements Ed25519 plugin certification.
//
// Tollgate plugins are Go modules compiled in by xtollgate, not artifacts
// loaded at runtime, so signatures cover the module identity string
// ("module@version") rather than file contents. A publisher signs the
// identity; an operator lists the publisher's public key as trusted.
package cert

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// VerifyConfig controls plugin certification.
type VerifyConfig struct {
	// RequireCertified rejects any plugin without a valid signature.
	RequireCertified bool

	// TrustedKeys holds hex-encoded Ed25519 public keys.
	TrustedKeys []string
}

// Verifier checks plugin signatures against a trusted key set.
type Verifier struct {
	required bool
	keys     []ed25519.PublicKey
}

// NewVerifier builds a Verifier. Requiring certification with an empty or
// invalid key set is a configuration error.
func NewVerifier(cfg VerifyConfig) (*Verifier, error) {
	if !cfg.RequireCertified {
		return &Verifier{}, nil
	}

	keys, err := parseTrustedKeys(cfg.TrustedKeys)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, errors.New("certification required but no trusted keys configured")
	}
	return &Verifier{required: true, keys: keys}, nil
}

// Verify checks the signature over moduleIdentity against every trusted
// key. When certification is not required every identity passes.
func (v *Verifier) Verify(moduleIdentity string, signature []byte) error {
	if !v.required {
		return nil
	}
	if len(signature) == 0 {
		return fmt.Errorf("plugin %s: signature required but not provided", moduleIdentity)
	}

	digest := identityDigest(moduleIdentity)
	for _, key := range v.keys {
		if ed25519.Verify(key, digest, signature) {
			return nil
		}
	}
	return fmt.Errorf("no trusted key verified signature for %s", moduleIdentity)
}

func parseTrustedKeys(hexKeys []string) ([]ed25519.PublicKey, error) {
	keys := make([]ed25519.PublicKey, 0, len(hexKeys))
	for _, hexKey := range hexKeys {
		raw, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted key %q: %w", hexKey, err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid key size for %q: got %d, want %d", hexKey, len(raw), ed25519.PublicKeySize)
		}
		keys = append(keys, ed25519.PublicKey(raw))
	}
	return keys, nil
}

// identityDigest is the value actually signed: SHA-256 of the identity
// string. Sign and Verify must agree on it.
func identityDigest(identity string) []byte {
	hash := sha256.Sum256([]byte(identity))
	return hash[:]
}
