package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"paircrypt/internal/domain"
	"paircrypt/internal/keys"
	"paircrypt/internal/protocol/ratchet"
	"paircrypt/internal/protocol/x3dh"
	"paircrypt/internal/services/prekey"
	"paircrypt/internal/util/memzero"
)

// errHandshakeReplayed is returned when an initial envelope repeats the
// handshake that created the current session.
var errHandshakeReplayed = fmt.Errorf("%w: %w: handshake already accepted", domain.ErrHandshakeFailure, domain.ErrReplayDetected)

// Service establishes sessions and runs the ratchet over a SessionStore.
type Service struct {
	keys     *keys.Manager
	sessions domain.SessionStore
	ratchet  *ratchet.Ratchet
	now      func() time.Time
	rand     io.Reader
	log      zerolog.Logger
	locks    *peerLocks
}

// Option configures a Service.
type Option func(*options)

type options struct {
	ratchet ratchet.Config
	now     func() time.Time
	rand    io.Reader
	log     zerolog.Logger
}

// WithRatchetConfig overrides ratchet.DefaultConfig. The clock and entropy
// source given to the Service are used when cfg leaves them unset.
func WithRatchetConfig(cfg ratchet.Config) Option { return func(o *options) { o.ratchet = cfg } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithRand overrides crypto/rand.Reader.
func WithRand(r io.Reader) Option { return func(o *options) { o.rand = r } }

// WithLogger sets the logger; the default discards.
func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.log = l } }

// New returns a Service that takes key material from km and keeps ratchet
// state in sessions.
func New(km *keys.Manager, sessions domain.SessionStore, opts ...Option) *Service {
	o := options{now: time.Now, rand: rand.Reader, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ratchet.Now == nil {
		o.ratchet.Now = o.now
	}
	if o.ratchet.Rand == nil {
		o.ratchet.Rand = o.rand
	}
	return &Service{
		keys:     km,
		sessions: sessions,
		ratchet:  ratchet.New(o.ratchet),
		now:      o.now,
		rand:     o.rand,
		log:      o.log,
		locks:    newPeerLocks(),
	}
}

// BeginSession validates the peer's bundle, runs X3DH as initiator and stores
// a new session. The handshake parameters ride on the first message
// encrypted under the returned handle. Any earlier session with peer is
// replaced and its handle becomes stale.
func (s *Service) BeginSession(peer domain.Address, bundle domain.KeyBundle) (domain.SessionHandle, error) {
	if err := prekey.ValidateBundle(bundle, s.now(), s.keys.Policy()); err != nil {
		return domain.SessionHandle{}, err
	}
	id, err := s.keys.Identity()
	if err != nil {
		return domain.SessionHandle{}, err
	}

	unlock := s.locks.lock(peer)
	defer unlock()

	existing, err := s.existing(peer)
	if err != nil {
		return domain.SessionHandle{}, err
	}
	if existing != nil {
		defer ratchet.Wipe(existing)
	}
	if err := checkSigningKey(existing, bundle.IdentityKey, bundle.SigningKey); err != nil {
		return domain.SessionHandle{}, err
	}

	ini, err := x3dh.Initiate(id, bundle, s.rand)
	if err != nil {
		return domain.SessionHandle{}, err
	}
	defer memzero.Zero(ini.EphemeralPrivate[:])
	defer wipeResult(ini.Result)

	st, err := s.ratchet.InitAsInitiator(ratchet.Seed{
		RootKey:         ini.RootKey,
		ChainKey:        ini.ChainKey,
		AssociatedData:  ini.AssociatedData,
		PeerIdentityKey: bundle.IdentityKey,
		PeerSigningKey:  bundle.SigningKey,
	}, ini.EphemeralPrivate, ini.EphemeralPublic, bundle.SignedPreKey)
	if err != nil {
		return domain.SessionHandle{}, domain.Handshake(err)
	}
	hs := ini.Handshake
	st.PendingHandshake = &hs

	if err := s.replace(peer, st); err != nil {
		return domain.SessionHandle{}, err
	}

	log := s.log.With().Str("peer", peer.String()).Str("session", st.SessionID.String()).Logger()
	if !bundle.HasOneTimePreKey() {
		log.Warn().Str("event", "reduced_security").Str("role", "initiator").Msg("handshake without one-time pre-key")
	}
	log.Info().Uint32("signed_pre_key_id", uint32(bundle.SignedPreKeyID)).Msg("session started")
	return domain.SessionHandle{Peer: peer, SessionID: st.SessionID}, nil
}

// AcceptSession completes the responder side of a handshake carried by an
// initial envelope. The envelope's message is authenticated on a scratch
// copy before the one-time pre-key is consumed; the state is stored without
// that message applied, so a following Decrypt of the same envelope returns
// its plaintext.
func (s *Service) AcceptSession(peer domain.Address, env domain.Envelope) (domain.SessionHandle, error) {
	initial, ok := env.(*domain.InitialHandshakeEnvelope)
	if !ok {
		return domain.SessionHandle{}, domain.Handshake(domain.ErrNotHandshake)
	}
	hs := initial.Handshake
	msg := initial.Inner

	id, err := s.keys.Identity()
	if err != nil {
		return domain.SessionHandle{}, err
	}

	unlock := s.locks.lock(peer)
	defer unlock()

	existing, err := s.existing(peer)
	if err != nil {
		return domain.SessionHandle{}, err
	}
	if existing != nil {
		defer ratchet.Wipe(existing)
	}
	if err := checkSigningKey(existing, hs.InitiatorIdentityKey, hs.InitiatorSigningKey); err != nil {
		return domain.SessionHandle{}, err
	}

	spk, err := s.keys.SignedPreKey(hs.SignedPreKeyID)
	if err != nil {
		return domain.SessionHandle{}, handshakeErr(err)
	}

	var opkPriv *domain.X25519Private
	if hs.OneTimePreKeyID != nil {
		opk, err := s.keys.OneTimePreKey(*hs.OneTimePreKeyID)
		if err != nil {
			return domain.SessionHandle{}, handshakeErr(err)
		}
		opkPriv = &opk.Priv
		defer memzero.Zero(opk.Priv[:])
	} else if existing != nil && existing.HandshakeKey == hs.EphemeralKey {
		return domain.SessionHandle{}, errHandshakeReplayed
	}

	var rk domain.X25519Public
	copy(rk[:], msg.Header.RatchetPublicKey)
	if rk != hs.EphemeralKey {
		return domain.SessionHandle{}, domain.Handshake(domain.ErrMalformedHeader)
	}

	res, err := x3dh.Respond(id, spk.Priv, opkPriv, hs)
	if err != nil {
		return domain.SessionHandle{}, err
	}
	defer wipeResult(res)

	st, err := s.ratchet.InitAsResponder(ratchet.Seed{
		RootKey:         res.RootKey,
		ChainKey:        res.ChainKey,
		AssociatedData:  res.AssociatedData,
		PeerIdentityKey: hs.InitiatorIdentityKey,
		PeerSigningKey:  hs.InitiatorSigningKey,
	}, hs.EphemeralKey)
	if err != nil {
		return domain.SessionHandle{}, domain.Handshake(err)
	}
	if err := s.ratchet.CanDecrypt(st, msg.Header, msg.Ciphertext); err != nil {
		ratchet.Wipe(st)
		return domain.SessionHandle{}, domain.Handshake(err)
	}

	log := s.log.With().Str("peer", peer.String()).Str("session", st.SessionID.String()).Logger()
	if existing != nil && !existing.PeerIdentityKey.IsZero() && existing.PeerIdentityKey != hs.InitiatorIdentityKey {
		log.Warn().Str("event", "identity_changed").Msg("peer presented a new identity key")
	}
	h := domain.SessionHandle{Peer: peer, SessionID: st.SessionID}
	if err := s.replace(peer, st); err != nil {
		return domain.SessionHandle{}, err
	}

	// The pre-key is consumed only once the session is stored. If that
	// fails the previous session is put back so the handshake stays
	// acceptable exactly once.
	if hs.OneTimePreKeyID != nil {
		priv, err := s.keys.ConsumeOneTimePreKey(*hs.OneTimePreKeyID)
		memzero.Zero(priv[:])
		if err != nil {
			s.restore(peer, existing)
			return domain.SessionHandle{}, handshakeErr(err)
		}
	}

	if hs.OneTimePreKeyID == nil {
		log.Warn().Str("event", "reduced_security").Str("role", "responder").Msg("handshake without one-time pre-key")
	}
	log.Info().Uint32("signed_pre_key_id", uint32(hs.SignedPreKeyID)).Msg("session accepted")
	return h, nil
}

// Encrypt seals plaintext for the session named by h. The first message of
// an initiated session is wrapped in an InitialHandshakeEnvelope.
func (s *Service) Encrypt(h domain.SessionHandle, plaintext []byte) (domain.Envelope, error) {
	unlock := s.locks.lock(h.Peer)
	defer unlock()

	st, err := s.load(h)
	if err != nil {
		return nil, err
	}
	defer ratchet.Wipe(st)

	header, ct, err := s.ratchet.Encrypt(st, plaintext)
	if err != nil {
		return nil, err
	}
	msg := domain.SteadyStateEnvelope{Header: header, Ciphertext: ct}

	var env domain.Envelope = &msg
	if st.PendingHandshake != nil {
		env = &domain.InitialHandshakeEnvelope{Handshake: *st.PendingHandshake, Inner: msg}
		st.PendingHandshake = nil
	}
	if err := s.sessions.SaveSession(h.Peer, st); err != nil {
		return nil, err
	}
	return env, nil
}

// Decrypt opens env for the session named by h. On failure the stored state
// is untouched.
func (s *Service) Decrypt(h domain.SessionHandle, env domain.Envelope) ([]byte, error) {
	if env == nil {
		return nil, domain.Decryption(domain.ErrMalformedEnvelope)
	}
	unlock := s.locks.lock(h.Peer)
	defer unlock()

	st, err := s.load(h)
	if err != nil {
		if errors.Is(err, domain.ErrSessionReset) {
			return nil, domain.Decryption(err)
		}
		return nil, err
	}
	defer ratchet.Wipe(st)

	msg := env.Message()
	pt, err := s.ratchet.Decrypt(st, msg.Header, msg.Ciphertext)
	if err != nil {
		s.log.Debug().
			Str("peer", h.Peer.String()).
			Uint32("n", msg.Header.MessageNumber).
			Err(err).
			Msg("decrypt failed")
		return nil, err
	}
	if err := s.sessions.SaveSession(h.Peer, st); err != nil {
		memzero.Zero(pt)
		return nil, err
	}
	return pt, nil
}

// ResetSession wipes the session's key material and leaves a terminal
// tombstone. Only a new handshake replaces it.
func (s *Service) ResetSession(h domain.SessionHandle) error {
	unlock := s.locks.lock(h.Peer)
	defer unlock()

	st, err := s.sessions.LoadSession(h.Peer)
	if err != nil {
		return err
	}
	if st.SessionID != h.SessionID {
		ratchet.Wipe(st)
		return domain.ErrStaleSession
	}
	if st.Phase == domain.PhaseReset {
		return nil
	}
	ratchet.Wipe(st)
	st.UpdatedAt = s.now()
	if err := s.sessions.SaveSession(h.Peer, st); err != nil {
		return err
	}
	s.log.Info().Str("peer", h.Peer.String()).Str("session", h.SessionID.String()).Msg("session reset")
	return nil
}

// Phase reports the lifecycle phase of the session named by h.
func (s *Service) Phase(h domain.SessionHandle) (domain.SessionPhase, error) {
	unlock := s.locks.lock(h.Peer)
	defer unlock()

	st, err := s.sessions.LoadSession(h.Peer)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.PhaseUninitialized, nil
	}
	if err != nil {
		return domain.PhaseUninitialized, err
	}
	defer ratchet.Wipe(st)
	if st.SessionID != h.SessionID {
		return domain.PhaseUninitialized, domain.ErrStaleSession
	}
	return st.Phase, nil
}

// Handle returns the handle of the live session with peer. ok is false when
// there is none or it was reset.
func (s *Service) Handle(peer domain.Address) (domain.SessionHandle, bool, error) {
	unlock := s.locks.lock(peer)
	defer unlock()

	st, err := s.sessions.LoadSession(peer)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.SessionHandle{}, false, nil
	}
	if err != nil {
		return domain.SessionHandle{}, false, err
	}
	defer ratchet.Wipe(st)
	if st.Phase == domain.PhaseReset {
		return domain.SessionHandle{}, false, nil
	}
	return domain.SessionHandle{Peer: peer, SessionID: st.SessionID}, true, nil
}

// existing returns the stored state for peer, or nil when there is none.
// Callers hold the peer lock.
func (s *Service) existing(peer domain.Address) (*domain.RatchetState, error) {
	st, err := s.sessions.LoadSession(peer)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	return st, err
}

// checkSigningKey rejects a signing key that differs from the one last seen
// together with the same identity key. A new identity key is a new identity
// and is let through; AcceptSession logs it.
func checkSigningKey(known *domain.RatchetState, ik domain.X25519Public, ed domain.Ed25519Public) error {
	if known == nil || known.PeerIdentityKey != ik || known.PeerSigningKey == (domain.Ed25519Public{}) {
		return nil
	}
	if known.PeerSigningKey != ed {
		return domain.Handshake(domain.ErrSigningKeyMismatch)
	}
	return nil
}

// load returns the live state for h. Callers hold the peer lock.
func (s *Service) load(h domain.SessionHandle) (*domain.RatchetState, error) {
	st, err := s.sessions.LoadSession(h.Peer)
	if err != nil {
		return nil, err
	}
	switch {
	case st.SessionID != h.SessionID:
		ratchet.Wipe(st)
		return nil, domain.ErrStaleSession
	case st.Phase == domain.PhaseReset:
		return nil, domain.ErrSessionReset
	}
	return st, nil
}

// replace stores st as the session with peer. Callers hold the peer lock.
func (s *Service) replace(peer domain.Address, st *domain.RatchetState) error {
	err := s.sessions.SaveSession(peer, st)
	ratchet.Wipe(st)
	return err
}

// restore puts prev back as the session with peer, or removes the session
// when there was none. Callers hold the peer lock.
func (s *Service) restore(peer domain.Address, prev *domain.RatchetState) {
	var err error
	if prev == nil {
		err = s.sessions.DeleteSession(peer)
	} else {
		err = s.sessions.SaveSession(peer, prev)
	}
	if err != nil {
		s.log.Error().Err(err).Str("peer", peer.String()).Msg("restoring session after failed accept")
	}
}

// handshakeErr classifies key lookup failures as handshake failures, except
// storage failures which callers may retry.
func handshakeErr(err error) error {
	if errors.Is(err, domain.ErrStorageFailure) {
		return err
	}
	return domain.Handshake(err)
}

func wipeResult(r x3dh.Result) {
	memzero.Zero(r.RootKey)
	memzero.Zero(r.ChainKey)
}

// Compile-time assertion that Service implements domain.SessionService.
var _ domain.SessionService = (*Service)(nil)
