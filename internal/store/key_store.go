package store

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"paircrypt/internal/domain"
)

// KeyFileStore is the on-disk domain.KeyStore: an encrypted identity next to
// the pre-key files.
type KeyFileStore struct {
	*IdentityFileStore
	*PreKeyFileStore
}

// NewKeyFileStore returns a KeyFileStore rooted at dir.
func NewKeyFileStore(dir, passphrase string) *KeyFileStore {
	return &KeyFileStore{
		IdentityFileStore: NewIdentityFileStore(dir, passphrase),
		PreKeyFileStore:   NewPreKeyFileStore(dir),
	}
}

// KeyMemStore is an in-memory domain.KeyStore.
type KeyMemStore struct {
	mu       sync.Mutex
	identity *domain.Identity
	signed   map[domain.SignedPreKeyID]domain.SignedPreKeyRecord
	current  domain.SignedPreKeyID
	oneTime  map[domain.OneTimePreKeyID]domain.OneTimePreKeyRecord
}

// NewKeyMemStore returns an empty KeyMemStore.
func NewKeyMemStore() *KeyMemStore {
	return &KeyMemStore{
		signed:  map[domain.SignedPreKeyID]domain.SignedPreKeyRecord{},
		oneTime: map[domain.OneTimePreKeyID]domain.OneTimePreKeyRecord{},
	}
}

func (s *KeyMemStore) SaveIdentity(id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = &id
	return nil
}

func (s *KeyMemStore) LoadIdentity() (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return domain.Identity{}, fmt.Errorf("identity: %w", domain.ErrKeyNotFound)
	}
	return *s.identity, nil
}

func (s *KeyMemStore) SaveSignedPreKey(rec domain.SignedPreKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Signature = slices.Clone(rec.Signature)
	s.signed[rec.ID] = rec
	return nil
}

func (s *KeyMemStore) LoadSignedPreKey(id domain.SignedPreKeyID) (domain.SignedPreKeyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.signed[id]
	rec.Signature = slices.Clone(rec.Signature)
	return rec, ok, nil
}

func (s *KeyMemStore) ListSignedPreKeys() ([]domain.SignedPreKeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SignedPreKeyRecord, 0, len(s.signed))
	for _, rec := range s.signed {
		rec.Signature = slices.Clone(rec.Signature)
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b domain.SignedPreKeyRecord) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *KeyMemStore) DeleteSignedPreKey(id domain.SignedPreKeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.signed, id)
	return nil
}

func (s *KeyMemStore) SetCurrentSignedPreKeyID(id domain.SignedPreKeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = id
	return nil
}

func (s *KeyMemStore) CurrentSignedPreKeyID() (domain.SignedPreKeyID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != 0, nil
}

func (s *KeyMemStore) SaveOneTimePreKeys(recs []domain.OneTimePreKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		s.oneTime[rec.ID] = rec
	}
	return nil
}

func (s *KeyMemStore) LoadOneTimePreKey(id domain.OneTimePreKeyID) (domain.OneTimePreKeyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.oneTime[id]
	return rec, ok, nil
}

func (s *KeyMemStore) ListOneTimePreKeys() ([]domain.OneTimePreKeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OneTimePreKeyRecord, 0, len(s.oneTime))
	for _, rec := range s.oneTime {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b domain.OneTimePreKeyRecord) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

var (
	_ domain.KeyStore = (*KeyFileStore)(nil)
	_ domain.KeyStore = (*KeyMemStore)(nil)
)
