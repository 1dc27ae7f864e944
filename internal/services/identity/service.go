package identity

import (
	"fmt"
	"unicode"

	"paircrypt/internal/crypto"
	"paircrypt/internal/domain"
	"paircrypt/internal/keys"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
)

// Service manages identity key creation and access through the key manager.
//
// The identity contains:
//   - X25519 key pair for Diffie-Hellman (X3DH and Double Ratchet).
//   - Ed25519 key pair for signing (for example, signing the Signed Pre-Key).
//
// The passphrase is the one the key store encrypts the identity under; it is
// only checked against the strength policy when a new identity is created.
type Service struct {
	keys       *keys.Manager
	passphrase string
}

// New returns an identity service over km.
func New(km *keys.Manager, passphrase string) *Service {
	return &Service{keys: km, passphrase: passphrase}
}

// GenerateIdentity creates a new identity and returns it plus a short
// fingerprint of the X25519 public key. It refuses weak passphrases and will
// not overwrite an existing identity.
func (s *Service) GenerateIdentity() (domain.Identity, domain.Fingerprint, error) {
	if !isSecurePassphrase(s.passphrase) {
		return domain.Identity{}, "", ErrWeakPassphrase
	}
	id, err := s.keys.GenerateIdentity()
	if err != nil {
		return domain.Identity{}, "", err
	}
	return id, fingerprint(id), nil
}

// LoadIdentity decrypts and returns the local identity.
func (s *Service) LoadIdentity() (domain.Identity, error) {
	return s.keys.Identity()
}

// FingerprintIdentity returns a short fingerprint of the local identity keys.
func (s *Service) FingerprintIdentity() (domain.Fingerprint, error) {
	id, err := s.keys.Identity()
	if err != nil {
		return "", err
	}
	return fingerprint(id), nil
}

func fingerprint(id domain.Identity) domain.Fingerprint {
	return domain.Fingerprint(crypto.IdentityFingerprint(id.XPub, id.EdPub))
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
