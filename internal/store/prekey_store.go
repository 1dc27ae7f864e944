package store

import (
	"cmp"
	"path/filepath"
	"slices"
	"sync"

	"paircrypt/internal/domain"
)

const (
	spkPairsFile   = "spk_pairs.json"
	opkPairsFile   = "opk_pairs.json"
	prekeyMetaFile = "prekey_meta.json"
)

// PreKeyFileStore persists Signed Pre-Key and One-Time Pre-Key state to disk.
type PreKeyFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewPreKeyFileStore returns a PreKeyFileStore rooted at dir.
func NewPreKeyFileStore(dir string) *PreKeyFileStore {
	return &PreKeyFileStore{dir: dir}
}

type prekeyMeta struct {
	CurrentSignedPreKeyID domain.SignedPreKeyID `json:"current_signed_pre_key_id"`
}

func (s *PreKeyFileStore) signedPreKeys() (map[domain.SignedPreKeyID]domain.SignedPreKeyRecord, error) {
	m := map[domain.SignedPreKeyID]domain.SignedPreKeyRecord{}
	if err := readJSON(filepath.Join(s.dir, spkPairsFile), &m); err != nil {
		return nil, domain.Storage("read signed pre-keys", err)
	}
	return m, nil
}

func (s *PreKeyFileStore) oneTimePreKeys() (map[domain.OneTimePreKeyID]domain.OneTimePreKeyRecord, error) {
	m := map[domain.OneTimePreKeyID]domain.OneTimePreKeyRecord{}
	if err := readJSON(filepath.Join(s.dir, opkPairsFile), &m); err != nil {
		return nil, domain.Storage("read one-time pre-keys", err)
	}
	return m, nil
}

// SaveSignedPreKey stores a signed pre-key by id.
func (s *PreKeyFileStore) SaveSignedPreKey(rec domain.SignedPreKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.signedPreKeys()
	if err != nil {
		return err
	}
	m[rec.ID] = rec
	if err := writeJSON(filepath.Join(s.dir, spkPairsFile), m); err != nil {
		return domain.Storage("write signed pre-keys", err)
	}
	return nil
}

// LoadSignedPreKey retrieves a signed pre-key by id.
func (s *PreKeyFileStore) LoadSignedPreKey(id domain.SignedPreKeyID) (domain.SignedPreKeyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.signedPreKeys()
	if err != nil {
		return domain.SignedPreKeyRecord{}, false, err
	}
	rec, ok := m[id]
	return rec, ok, nil
}

// ListSignedPreKeys returns every stored signed pre-key ordered by id.
func (s *PreKeyFileStore) ListSignedPreKeys() ([]domain.SignedPreKeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.signedPreKeys()
	if err != nil {
		return nil, err
	}
	out := make([]domain.SignedPreKeyRecord, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b domain.SignedPreKeyRecord) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// DeleteSignedPreKey removes a signed pre-key. Unknown ids are ignored.
func (s *PreKeyFileStore) DeleteSignedPreKey(id domain.SignedPreKeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.signedPreKeys()
	if err != nil {
		return err
	}
	if _, ok := m[id]; !ok {
		return nil
	}
	delete(m, id)
	if err := writeJSON(filepath.Join(s.dir, spkPairsFile), m); err != nil {
		return domain.Storage("write signed pre-keys", err)
	}
	return nil
}

// SetCurrentSignedPreKeyID records which signed pre-key id is current.
func (s *PreKeyFileStore) SetCurrentSignedPreKeyID(id domain.SignedPreKeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := prekeyMeta{CurrentSignedPreKeyID: id}
	if err := writeJSON(filepath.Join(s.dir, prekeyMetaFile), meta); err != nil {
		return domain.Storage("write pre-key metadata", err)
	}
	return nil
}

// CurrentSignedPreKeyID returns the recorded current signed pre-key id.
func (s *PreKeyFileStore) CurrentSignedPreKeyID() (domain.SignedPreKeyID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta prekeyMeta
	if err := readJSON(filepath.Join(s.dir, prekeyMetaFile), &meta); err != nil {
		return 0, false, domain.Storage("read pre-key metadata", err)
	}
	if meta.CurrentSignedPreKeyID == 0 {
		return 0, false, nil
	}
	return meta.CurrentSignedPreKeyID, true, nil
}

// SaveOneTimePreKeys merges the provided one-time pre-keys into the store.
func (s *PreKeyFileStore) SaveOneTimePreKeys(recs []domain.OneTimePreKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.oneTimePreKeys()
	if err != nil {
		return err
	}
	for _, rec := range recs {
		m[rec.ID] = rec
	}
	if err := writeJSON(filepath.Join(s.dir, opkPairsFile), m); err != nil {
		return domain.Storage("write one-time pre-keys", err)
	}
	return nil
}

// LoadOneTimePreKey retrieves a single one-time pre-key by id.
func (s *PreKeyFileStore) LoadOneTimePreKey(id domain.OneTimePreKeyID) (domain.OneTimePreKeyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.oneTimePreKeys()
	if err != nil {
		return domain.OneTimePreKeyRecord{}, false, err
	}
	rec, ok := m[id]
	return rec, ok, nil
}

// ListOneTimePreKeys returns every one-time pre-key, consumed tombstones
// included, ordered by id.
func (s *PreKeyFileStore) ListOneTimePreKeys() ([]domain.OneTimePreKeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.oneTimePreKeys()
	if err != nil {
		return nil, err
	}
	out := make([]domain.OneTimePreKeyRecord, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b domain.OneTimePreKeyRecord) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// Compile-time assertion that PreKeyFileStore implements domain.PreKeyStore.
var _ domain.PreKeyStore = (*PreKeyFileStore)(nil)
