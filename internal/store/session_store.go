package store

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"paircrypt/internal/domain"
)

const sessionsDir = "sessions"

// SessionFileStore persists Double Ratchet state to disk, one CBOR file per
// peer device.
type SessionFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewSessionFileStore returns a SessionFileStore rooted at dir.
func NewSessionFileStore(dir string) *SessionFileStore {
	return &SessionFileStore{dir: filepath.Join(dir, sessionsDir)}
}

func (s *SessionFileStore) path(peer domain.Address) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.%d.cbor", url.PathEscape(peer.Name), peer.DeviceID))
}

// SaveSession writes the session state for peer.
func (s *SessionFileStore) SaveSession(peer domain.Address, st *domain.RatchetState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeCBOR(s.path(peer), st); err != nil {
		return domain.Storage("save session "+peer.String(), err)
	}
	return nil
}

// LoadSession retrieves the session state for peer.
func (s *SessionFileStore) LoadSession(peer domain.Address) (*domain.RatchetState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(s.path(peer))
	if err != nil {
		return nil, domain.Storage("load session "+peer.String(), err)
	}
	if b == nil {
		return nil, fmt.Errorf("%s: %w", peer, domain.ErrSessionNotFound)
	}
	var st domain.RatchetState
	if err := cbor.Unmarshal(b, &st); err != nil {
		return nil, domain.Storage("decode session "+peer.String(), err)
	}
	return &st, nil
}

// DeleteSession removes the session state for peer. A missing file is not
// an error.
func (s *SessionFileStore) DeleteSession(peer domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(peer)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.Storage("delete session "+peer.String(), err)
	}
	return nil
}

// SessionMemStore keeps session state in memory. States are copied on the
// way in and out so callers never share key material with the store.
type SessionMemStore struct {
	mu       sync.Mutex
	sessions map[domain.Address]*domain.RatchetState
}

// NewSessionMemStore returns an empty SessionMemStore.
func NewSessionMemStore() *SessionMemStore {
	return &SessionMemStore{sessions: map[domain.Address]*domain.RatchetState{}}
}

func (s *SessionMemStore) SaveSession(peer domain.Address, st *domain.RatchetState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[peer] = st.Clone()
	return nil
}

func (s *SessionMemStore) LoadSession(peer domain.Address) (*domain.RatchetState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[peer]
	if !ok {
		return nil, fmt.Errorf("%s: %w", peer, domain.ErrSessionNotFound)
	}
	return st.Clone(), nil
}

func (s *SessionMemStore) DeleteSession(peer domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, peer)
	return nil
}

var (
	_ domain.SessionStore = (*SessionFileStore)(nil)
	_ domain.SessionStore = (*SessionMemStore)(nil)
)
