package types

import "time"

// SignedPreKeyRecord is a signed pre-key pair as kept by the key store.
// SupersededAt is zero while the key is current.
type SignedPreKeyRecord struct {
	ID           SignedPreKeyID `json:"id"`
	Priv         X25519Private  `json:"priv"`
	Pub          X25519Public   `json:"pub"`
	Signature    []byte         `json:"sig"`
	CreatedAt    time.Time      `json:"created_at"`
	SupersededAt time.Time      `json:"superseded_at,omitempty"`
}

// OneTimePreKeyState tracks the lifecycle of a one-time pre-key.
type OneTimePreKeyState uint8

const (
	// OneTimePreKeyAvailable keys have never been published.
	OneTimePreKeyAvailable OneTimePreKeyState = iota
	// OneTimePreKeyOffered keys were published in a bundle but not yet claimed.
	OneTimePreKeyOffered
	// OneTimePreKeyConsumed keys were claimed by a handshake; only the ID remains.
	OneTimePreKeyConsumed
)

func (s OneTimePreKeyState) String() string {
	switch s {
	case OneTimePreKeyAvailable:
		return "available"
	case OneTimePreKeyOffered:
		return "offered"
	case OneTimePreKeyConsumed:
		return "consumed"
	}
	return "unknown"
}

// OneTimePreKeyRecord is the full (private+public) one-time pre-key stored locally.
type OneTimePreKeyRecord struct {
	ID    OneTimePreKeyID    `json:"id"`
	Priv  X25519Private      `json:"priv"`
	Pub   X25519Public       `json:"pub"`
	State OneTimePreKeyState `json:"state"`
}

// KeyBundle is the public projection of one identity, one signed pre-key and
// at most one one-time pre-key, as published to the directory.
type KeyBundle struct {
	IdentityKey           X25519Public     `json:"identity_key"`
	SigningKey            Ed25519Public    `json:"signing_key"`
	SignedPreKeyID        SignedPreKeyID   `json:"signed_pre_key_id"`
	SignedPreKey          X25519Public     `json:"signed_pre_key"`
	SignedPreKeyCreatedAt int64            `json:"signed_pre_key_created_at"`
	SignedPreKeySignature []byte           `json:"signed_pre_key_signature"`
	OneTimePreKeyID       *OneTimePreKeyID `json:"one_time_pre_key_id,omitempty"`
	OneTimePreKey         *X25519Public    `json:"one_time_pre_key,omitempty"`
}

// HasOneTimePreKey reports whether the bundle offers a one-time pre-key.
func (b KeyBundle) HasOneTimePreKey() bool {
	return b.OneTimePreKeyID != nil && b.OneTimePreKey != nil
}
