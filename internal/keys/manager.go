package keys

import (
	"cmp"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"paircrypt/internal/crypto"
	"paircrypt/internal/domain"
	"paircrypt/internal/util/memzero"
)

// Manager generates, rotates and hands out key material. All methods are
// safe for concurrent use; read-modify-write cycles on the store are
// serialised.
type Manager struct {
	mu     sync.Mutex
	store  domain.KeyStore
	policy Policy
	now    func() time.Time
	rand   io.Reader
}

// Option configures a Manager.
type Option func(*Manager)

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option { return func(m *Manager) { m.policy = p } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithRand overrides crypto/rand.Reader.
func WithRand(r io.Reader) Option { return func(m *Manager) { m.rand = r } }

// New returns a Manager over store.
func New(store domain.KeyStore, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		policy: DefaultPolicy(),
		now:    time.Now,
		rand:   rand.Reader,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Policy returns the active policy.
func (m *Manager) Policy() Policy { return m.policy }

// GenerateIdentity creates and stores a new identity. It refuses to replace
// an existing one.
func (m *Manager) GenerateIdentity() (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.store.LoadIdentity()
	switch {
	case err == nil:
		return domain.Identity{}, domain.ErrIdentityExists
	case !errors.Is(err, domain.ErrKeyNotFound):
		return domain.Identity{}, err
	}
	return m.newIdentityLocked()
}

// ResetIdentity replaces the identity unconditionally and rotates the signed
// pre-key, since the old signature no longer verifies. Existing sessions
// must be reset by the caller.
func (m *Manager) ResetIdentity() (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.newIdentityLocked()
	if err != nil {
		return domain.Identity{}, err
	}
	if _, err := m.rotateLocked(id); err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

func (m *Manager) newIdentityLocked() (domain.Identity, error) {
	xPriv, xPub, err := crypto.GenerateX25519From(m.rand)
	if err != nil {
		return domain.Identity{}, err
	}
	edPriv, edPub, err := crypto.GenerateEd25519From(m.rand)
	if err != nil {
		return domain.Identity{}, err
	}
	id := domain.Identity{XPub: xPub, XPriv: xPriv, EdPub: edPub, EdPriv: edPriv}
	if err := m.store.SaveIdentity(id); err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

// Identity returns the stored identity or a wrapped domain.ErrKeyNotFound.
func (m *Manager) Identity() (domain.Identity, error) {
	return m.store.LoadIdentity()
}

// RotateSignedPreKey creates a new current signed pre-key, marks the previous
// one superseded and destroys superseded keys past the grace window.
func (m *Manager) RotateSignedPreKey() (domain.SignedPreKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.store.LoadIdentity()
	if err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	return m.rotateLocked(id)
}

func (m *Manager) rotateLocked(id domain.Identity) (domain.SignedPreKeyRecord, error) {
	existing, err := m.store.ListSignedPreKeys()
	if err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	var next domain.SignedPreKeyID = 1
	for _, rec := range existing {
		if rec.ID >= next {
			next = rec.ID + 1
		}
	}

	priv, pub, err := crypto.GenerateX25519From(m.rand)
	if err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	// The transcript carries whole seconds.
	created := time.Unix(m.now().Unix(), 0)
	rec := domain.SignedPreKeyRecord{
		ID:        next,
		Priv:      priv,
		Pub:       pub,
		Signature: crypto.SignEd25519(id.EdPriv, crypto.SignedPreKeyTranscript(id.XPub, next, created.Unix(), pub)),
		CreatedAt: created,
	}
	if err := m.store.SaveSignedPreKey(rec); err != nil {
		return domain.SignedPreKeyRecord{}, err
	}

	now := m.now()
	for _, old := range existing {
		if old.SupersededAt.IsZero() {
			old.SupersededAt = now
			if err := m.store.SaveSignedPreKey(old); err != nil {
				return domain.SignedPreKeyRecord{}, err
			}
		}
	}
	if err := m.store.SetCurrentSignedPreKeyID(next); err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	if err := m.purgeLocked(now); err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	return rec, nil
}

// purgeLocked destroys superseded signed pre-keys whose grace window elapsed.
func (m *Manager) purgeLocked(now time.Time) error {
	recs, err := m.store.ListSignedPreKeys()
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if m.expired(rec, now) {
			memzero.Zero(rec.Priv[:])
			if err := m.store.DeleteSignedPreKey(rec.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) expired(rec domain.SignedPreKeyRecord, now time.Time) bool {
	return !rec.SupersededAt.IsZero() && now.Sub(rec.SupersededAt) > m.policy.GraceWindow
}

// CurrentSignedPreKey returns the current signed pre-key.
func (m *Manager) CurrentSignedPreKey() (domain.SignedPreKeyRecord, error) {
	id, ok, err := m.store.CurrentSignedPreKeyID()
	if err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	if !ok {
		return domain.SignedPreKeyRecord{}, fmt.Errorf("no current signed pre-key: %w", domain.ErrKeyNotFound)
	}
	return m.SignedPreKey(id)
}

// SignedPreKey returns the signed pre-key with the given id. Superseded keys
// past their grace window report domain.ErrSignedPreKeyExpired.
func (m *Manager) SignedPreKey(id domain.SignedPreKeyID) (domain.SignedPreKeyRecord, error) {
	rec, ok, err := m.store.LoadSignedPreKey(id)
	if err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	if !ok {
		return domain.SignedPreKeyRecord{}, fmt.Errorf("signed pre-key %d: %w", id, domain.ErrKeyNotFound)
	}
	if m.expired(rec, m.now()) {
		return domain.SignedPreKeyRecord{}, fmt.Errorf("signed pre-key %d: %w", id, domain.ErrSignedPreKeyExpired)
	}
	return rec, nil
}

// GenerateOneTimePreKeys creates count new one-time pre-keys with ids above
// every id ever issued, including consumed ones.
func (m *Manager) GenerateOneTimePreKeys(count int) ([]domain.OneTimePreKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.ListOneTimePreKeys()
	if err != nil {
		return nil, err
	}
	var next domain.OneTimePreKeyID = 1
	for _, rec := range existing {
		if rec.ID >= next {
			next = rec.ID + 1
		}
	}

	batch := make([]domain.OneTimePreKeyRecord, 0, count)
	for i := 0; i < count; i++ {
		priv, pub, err := crypto.GenerateX25519From(m.rand)
		if err != nil {
			return nil, err
		}
		batch = append(batch, domain.OneTimePreKeyRecord{
			ID:    next + domain.OneTimePreKeyID(i),
			Priv:  priv,
			Pub:   pub,
			State: domain.OneTimePreKeyAvailable,
		})
	}
	if err := m.store.SaveOneTimePreKeys(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// OneTimePreKey returns a one-time pre-key without consuming it.
func (m *Manager) OneTimePreKey(id domain.OneTimePreKeyID) (domain.OneTimePreKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadUnconsumedLocked(id)
}

// ConsumeOneTimePreKey returns the private half of a one-time pre-key and
// destroys it. A second call for the same id fails with
// domain.ErrPreKeyAlreadyConsumed.
func (m *Manager) ConsumeOneTimePreKey(id domain.OneTimePreKeyID) (domain.X25519Private, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.loadUnconsumedLocked(id)
	if err != nil {
		return domain.X25519Private{}, err
	}
	priv := rec.Priv
	memzero.Zero(rec.Priv[:])
	tombstone := domain.OneTimePreKeyRecord{ID: id, State: domain.OneTimePreKeyConsumed}
	if err := m.store.SaveOneTimePreKeys([]domain.OneTimePreKeyRecord{tombstone}); err != nil {
		return domain.X25519Private{}, err
	}
	return priv, nil
}

func (m *Manager) loadUnconsumedLocked(id domain.OneTimePreKeyID) (domain.OneTimePreKeyRecord, error) {
	rec, ok, err := m.store.LoadOneTimePreKey(id)
	if err != nil {
		return domain.OneTimePreKeyRecord{}, err
	}
	if !ok {
		return domain.OneTimePreKeyRecord{}, fmt.Errorf("one-time pre-key %d: %w", id, domain.ErrKeyNotFound)
	}
	if rec.State == domain.OneTimePreKeyConsumed {
		return domain.OneTimePreKeyRecord{}, fmt.Errorf("one-time pre-key %d: %w", id, domain.ErrPreKeyAlreadyConsumed)
	}
	return rec, nil
}

// OfferOneTimePreKey marks the lowest available one-time pre-key as offered
// and returns it. ok is false when none is available.
func (m *Manager) OfferOneTimePreKey() (rec domain.OneTimePreKeyRecord, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs, err := m.store.ListOneTimePreKeys()
	if err != nil {
		return domain.OneTimePreKeyRecord{}, false, err
	}
	slices.SortFunc(recs, func(a, b domain.OneTimePreKeyRecord) int { return cmp.Compare(a.ID, b.ID) })
	for _, r := range recs {
		if r.State != domain.OneTimePreKeyAvailable {
			continue
		}
		r.State = domain.OneTimePreKeyOffered
		if err := m.store.SaveOneTimePreKeys([]domain.OneTimePreKeyRecord{r}); err != nil {
			return domain.OneTimePreKeyRecord{}, false, err
		}
		return r, true, nil
	}
	return domain.OneTimePreKeyRecord{}, false, nil
}

// AvailableOneTimePreKeys counts keys that were never offered.
func (m *Manager) AvailableOneTimePreKeys() (int, error) {
	recs, err := m.store.ListOneTimePreKeys()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range recs {
		if r.State == domain.OneTimePreKeyAvailable {
			n++
		}
	}
	return n, nil
}
