package domain

import (
	"errors"
	"fmt"
)

// Failure categories. Every error returned by the core wraps exactly one of
// these, so callers can branch with errors.Is.
var (
	ErrHandshakeFailure  = errors.New("handshake failure")
	ErrDecryptionFailure = errors.New("decryption failure")
	ErrReplayDetected    = errors.New("replay detected")
	ErrStorageFailure    = errors.New("storage failure")
)

// Specific causes.
var (
	ErrKeyNotFound           = errors.New("key not found")
	ErrPreKeyAlreadyConsumed = fmt.Errorf("one-time pre-key already consumed: %w", ErrKeyNotFound)
	ErrInvalidSignature      = errors.New("invalid signed pre-key signature")
	ErrSignedPreKeyExpired   = errors.New("signed pre-key expired")
	ErrMalformedBundle       = errors.New("malformed key bundle")
	ErrIdentityExists        = errors.New("identity already exists")
	ErrSigningKeyMismatch    = errors.New("signing key does not belong to the known peer identity")

	ErrMalformedHeader   = errors.New("malformed message header")
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrAuthentication    = errors.New("message authentication failed")
	ErrTooManySkipped    = errors.New("too many skipped messages")
	ErrKeyEvicted        = errors.New("message key evicted from skipped-key cache")
	ErrNoMessageKey      = errors.New("no message key derivable for counter")

	ErrSessionNotFound = errors.New("session not found")
	ErrStaleSession    = errors.New("session handle is stale")
	ErrSessionReset    = errors.New("session was reset")
	ErrNotHandshake    = errors.New("envelope does not start a session")
)

// Handshake wraps err as a handshake failure.
func Handshake(err error) error { return fmt.Errorf("%w: %w", ErrHandshakeFailure, err) }

// Decryption wraps err as a decryption failure.
func Decryption(err error) error { return fmt.Errorf("%w: %w", ErrDecryptionFailure, err) }

// Replay reports a counter that was already consumed. The result matches
// both ErrReplayDetected and ErrDecryptionFailure.
func Replay(counter uint32) error {
	return fmt.Errorf("%w: %w: counter %d", ErrDecryptionFailure, ErrReplayDetected, counter)
}

// Storage wraps err as a storage failure.
func Storage(op string, err error) error { return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err) }

// Retriable reports whether err reflects an external dependency a caller may
// reasonably retry. Only storage failures qualify.
func Retriable(err error) bool { return errors.Is(err, ErrStorageFailure) }
