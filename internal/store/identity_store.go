package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"paircrypt/internal/domain"
	"paircrypt/internal/util/memzero"
)

const idFilename = "identity.json.enc"

// IdentityFileStore persists the local identity to disk, encrypted under a
// passphrase.
type IdentityFileStore struct {
	dir        string
	passphrase string
	mu         sync.Mutex
}

// NewIdentityFileStore returns an IdentityFileStore rooted at dir.
func NewIdentityFileStore(dir, passphrase string) *IdentityFileStore {
	return &IdentityFileStore{dir: dir, passphrase: passphrase}
}

// SaveIdentity writes the encrypted identity to disk.
func (s *IdentityFileStore) SaveIdentity(id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(id)
	if err != nil {
		return domain.Storage("encode identity", err)
	}
	defer memzero.Zero(raw)

	ct, err := seal(s.passphrase, raw, defaultScrypt)
	if err != nil {
		return domain.Storage("seal identity", err)
	}
	if err := writeFile(filepath.Join(s.dir, idFilename), ct); err != nil {
		return domain.Storage("write identity", err)
	}
	return nil
}

// LoadIdentity reads and decrypts the identity.
func (s *IdentityFileStore) LoadIdentity() (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(filepath.Join(s.dir, idFilename))
	if err != nil {
		return domain.Identity{}, domain.Storage("read identity", err)
	}
	if b == nil {
		return domain.Identity{}, fmt.Errorf("identity: %w", domain.ErrKeyNotFound)
	}
	pt, err := unseal(s.passphrase, b)
	if errors.Is(err, ErrWrongPassphrase) {
		return domain.Identity{}, err
	}
	if err != nil {
		return domain.Identity{}, domain.Storage("open identity", err)
	}
	defer memzero.Zero(pt)

	var id domain.Identity
	if err := json.Unmarshal(pt, &id); err != nil {
		return domain.Identity{}, domain.Storage("decode identity", err)
	}
	return id, nil
}

// Compile-time assertion that IdentityFileStore implements domain.IdentityStore.
var _ domain.IdentityStore = (*IdentityFileStore)(nil)
