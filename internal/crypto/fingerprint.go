package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"paircrypt/internal/domain"
)

// Fingerprint returns a short hex fingerprint of a public key.
//
// It hashes with SHA-256 and truncates to 10 bytes (20 hex chars).
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:10])
}

// IdentityFingerprint fingerprints both halves of an identity, so a
// substituted signing key changes what the user compares out of band.
func IdentityFingerprint(x domain.X25519Public, ed domain.Ed25519Public) string {
	buf := make([]byte, 0, len(x)+len(ed))
	buf = append(buf, x[:]...)
	buf = append(buf, ed[:]...)
	return Fingerprint(buf)
}
