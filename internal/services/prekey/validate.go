package prekey

import (
	"fmt"
	"time"

	"paircrypt/internal/domain"
	"paircrypt/internal/keys"
	"paircrypt/internal/protocol/x3dh"
)

// MaxClockSkew is how far in the future a signed pre-key may be dated.
const MaxClockSkew = 5 * time.Minute

// ValidateBundle checks a peer bundle before a handshake. Every error wraps
// domain.ErrHandshakeFailure.
func ValidateBundle(b domain.KeyBundle, now time.Time, policy keys.Policy) error {
	switch {
	case b.IdentityKey.IsZero(), b.SignedPreKey.IsZero():
		return domain.Handshake(fmt.Errorf("%w: missing key", domain.ErrMalformedBundle))
	case (b.OneTimePreKeyID == nil) != (b.OneTimePreKey == nil):
		return domain.Handshake(fmt.Errorf("%w: half-present one-time pre-key", domain.ErrMalformedBundle))
	case b.OneTimePreKey != nil && b.OneTimePreKey.IsZero():
		return domain.Handshake(fmt.Errorf("%w: zero one-time pre-key", domain.ErrMalformedBundle))
	}

	if !x3dh.VerifySignedPreKey(b) {
		return domain.Handshake(domain.ErrInvalidSignature)
	}

	created := time.Unix(b.SignedPreKeyCreatedAt, 0)
	if created.After(now.Add(MaxClockSkew)) {
		return domain.Handshake(fmt.Errorf("%w: signed pre-key dated %s", domain.ErrMalformedBundle, created.UTC().Format(time.RFC3339)))
	}
	if now.Sub(created) > policy.SignedPreKeyLifetime() {
		return domain.Handshake(fmt.Errorf("%w: created %s", domain.ErrSignedPreKeyExpired, created.UTC().Format(time.RFC3339)))
	}
	return nil
}
