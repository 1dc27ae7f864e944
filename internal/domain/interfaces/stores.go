package interfaces

import domaintypes "paircrypt/internal/domain/types"

// IdentityStore persists your long-term identity keys.
type IdentityStore interface {
	SaveIdentity(id domaintypes.Identity) error
	// LoadIdentity returns domain.ErrKeyNotFound (wrapped) when no identity exists.
	LoadIdentity() (domaintypes.Identity, error)
}

// PreKeyStore manages signed and one-time pre-keys.
type PreKeyStore interface {
	SaveSignedPreKey(rec domaintypes.SignedPreKeyRecord) error
	LoadSignedPreKey(id domaintypes.SignedPreKeyID) (domaintypes.SignedPreKeyRecord, bool, error)
	ListSignedPreKeys() ([]domaintypes.SignedPreKeyRecord, error)
	DeleteSignedPreKey(id domaintypes.SignedPreKeyID) error

	SetCurrentSignedPreKeyID(id domaintypes.SignedPreKeyID) error
	CurrentSignedPreKeyID() (domaintypes.SignedPreKeyID, bool, error)

	// SaveOneTimePreKeys merges records by ID, overwriting existing ones.
	SaveOneTimePreKeys(recs []domaintypes.OneTimePreKeyRecord) error
	LoadOneTimePreKey(id domaintypes.OneTimePreKeyID) (domaintypes.OneTimePreKeyRecord, bool, error)
	ListOneTimePreKeys() ([]domaintypes.OneTimePreKeyRecord, error)
}

// KeyStore is the persistence backing the key material store.
type KeyStore interface {
	IdentityStore
	PreKeyStore
}

// SessionStore persists ratchet state per peer device.
type SessionStore interface {
	// LoadSession returns domain.ErrSessionNotFound (wrapped) when absent.
	LoadSession(peer domaintypes.Address) (*domaintypes.RatchetState, error)
	SaveSession(peer domaintypes.Address, st *domaintypes.RatchetState) error
	DeleteSession(peer domaintypes.Address) error
}
