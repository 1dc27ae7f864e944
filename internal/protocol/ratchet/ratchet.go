package ratchet

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"paircrypt/internal/crypto"
	"paircrypt/internal/domain"
	"paircrypt/internal/protocol/skipcache"
	"paircrypt/internal/util/memzero"
)

const (
	rootInfo = "paircrypt/ratchet/root"
	keySize  = 32

	// DefaultMaxSkip bounds how far ahead of the receiving counter a single
	// message may jump.
	DefaultMaxSkip = 1000

	// maxRetiredChains bounds how many retired receiving chains keep a mark.
	maxRetiredChains = 16
)

var (
	messageKeySeed = []byte{0x01}
	chainKeySeed   = []byte{0x02}

	errChainUninitialised = errors.New("ratchet chain key is uninitialised")
	errShortSeed          = errors.New("ratchet seed keys must be 32 bytes")
)

// Config tunes a Ratchet. Zero fields take defaults.
type Config struct {
	MaxSkip uint32
	Cache   skipcache.Limits
	Now     func() time.Time
	Rand    io.Reader
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		MaxSkip: DefaultMaxSkip,
		Cache:   skipcache.DefaultLimits,
		Now:     time.Now,
		Rand:    rand.Reader,
	}
}

// Ratchet runs the Double Ratchet over caller-owned states.
type Ratchet struct {
	cfg Config
}

// New returns a Ratchet. Unset fields in cfg fall back to DefaultConfig.
func New(cfg Config) *Ratchet {
	def := DefaultConfig()
	if cfg.MaxSkip == 0 {
		cfg.MaxSkip = def.MaxSkip
	}
	if cfg.Cache == (skipcache.Limits{}) {
		cfg.Cache = def.Cache
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = def.Rand
	}
	return &Ratchet{cfg: cfg}
}

// Seed is the handshake output a session starts from.
type Seed struct {
	RootKey         []byte
	ChainKey        []byte
	AssociatedData  []byte
	PeerIdentityKey domain.X25519Public
	PeerSigningKey  domain.Ed25519Public
}

func (s Seed) valid() bool { return len(s.RootKey) == keySize && len(s.ChainKey) == keySize }

// InitAsInitiator seeds the sending chain with the handshake chain key. The
// handshake ephemeral pair becomes the first sending ratchet pair and the
// peer's signed pre-key stands in for its ratchet key until it replies.
func (r *Ratchet) InitAsInitiator(
	seed Seed,
	ratchetPriv domain.X25519Private,
	ratchetPub domain.X25519Public,
	peerSignedPreKey domain.X25519Public,
) (*domain.RatchetState, error) {
	if !seed.valid() {
		return nil, errShortSeed
	}
	now := r.cfg.Now()
	return &domain.RatchetState{
		SessionID:              uuid.New(),
		Phase:                  domain.PhaseEstablished,
		RootKey:                clone(seed.RootKey),
		SendingRatchetPrivate:  ratchetPriv,
		SendingRatchetPublic:   ratchetPub,
		ReceivingRatchetPublic: peerSignedPreKey, // placeholder until the first reply
		SendChainKey:           clone(seed.ChainKey),
		AssociatedData:         clone(seed.AssociatedData),
		PeerIdentityKey:        seed.PeerIdentityKey,
		PeerSigningKey:         seed.PeerSigningKey,
		Initiator:              true,
		HandshakeKey:           ratchetPub,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

// InitAsResponder seeds the receiving chain for the initiator's ephemeral
// key. The responder has no sending chain until it first encrypts.
func (r *Ratchet) InitAsResponder(seed Seed, peerRatchetKey domain.X25519Public) (*domain.RatchetState, error) {
	if !seed.valid() {
		return nil, errShortSeed
	}
	now := r.cfg.Now()
	return &domain.RatchetState{
		SessionID:              uuid.New(),
		Phase:                  domain.PhaseEstablished,
		RootKey:                clone(seed.RootKey),
		ReceivingRatchetPublic: peerRatchetKey,
		ReceiveChainKey:        clone(seed.ChainKey),
		AssociatedData:         clone(seed.AssociatedData),
		PeerIdentityKey:        seed.PeerIdentityKey,
		PeerSigningKey:         seed.PeerSigningKey,
		HandshakeKey:           peerRatchetKey,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

// Encrypt advances the sending chain and seals plaintext. A responder's
// first send performs the sending half of a DH ratchet step first.
func (r *Ratchet) Encrypt(st *domain.RatchetState, plaintext []byte) (domain.RatchetHeader, []byte, error) {
	if st.Phase == domain.PhaseReset {
		return domain.RatchetHeader{}, nil, domain.ErrSessionReset
	}
	if len(st.SendChainKey) == 0 {
		if err := r.stepSending(st); err != nil {
			return domain.RatchetHeader{}, nil, err
		}
	}

	mk, err := advance(&st.SendChainKey)
	if err != nil {
		return domain.RatchetHeader{}, nil, err
	}
	defer memzero.Zero(mk)

	n := st.SendCount + 1
	h := domain.RatchetHeader{
		RatchetPublicKey:    clone(st.SendingRatchetPublic[:]),
		MessageNumber:       n,
		PreviousChainLength: st.PreviousSendCount,
	}
	ct, err := crypto.Seal(mk, n, plaintext, associatedData(st.AssociatedData, h))
	if err != nil {
		return domain.RatchetHeader{}, nil, err
	}
	st.SendCount = n
	st.Phase = domain.PhaseActive
	st.UpdatedAt = r.cfg.Now()
	return h, ct, nil
}

// Decrypt locates or derives the message key for h and opens ciphertext.
// On any error st is left exactly as it was.
func (r *Ratchet) Decrypt(st *domain.RatchetState, h domain.RatchetHeader, ciphertext []byte) ([]byte, error) {
	if st.Phase == domain.PhaseReset {
		return nil, domain.Decryption(domain.ErrSessionReset)
	}
	if h.MessageNumber == 0 || len(h.RatchetPublicKey) != keySize {
		return nil, domain.Decryption(domain.ErrMalformedHeader)
	}

	work := st.Clone()
	pt, err := r.decrypt(work, h, ciphertext)
	if err != nil {
		wipe(work)
		return nil, err
	}
	work.Phase = domain.PhaseActive
	work.UpdatedAt = r.cfg.Now()
	wipe(st)
	*st = *work
	return pt, nil
}

// CanDecrypt reports whether Decrypt would succeed, without changing st.
func (r *Ratchet) CanDecrypt(st *domain.RatchetState, h domain.RatchetHeader, ciphertext []byte) error {
	work := st.Clone()
	defer wipe(work)
	pt, err := r.Decrypt(work, h, ciphertext)
	memzero.Zero(pt)
	return err
}

// Wipe zeroes every secret in st and marks it reset.
func Wipe(st *domain.RatchetState) {
	wipe(st)
	st.Phase = domain.PhaseReset
	st.PendingHandshake = nil
	st.RetiredChains = nil
	st.Skipped.Tombstones = nil
}

func (r *Ratchet) decrypt(st *domain.RatchetState, h domain.RatchetHeader, ciphertext []byte) ([]byte, error) {
	var rk domain.X25519Public
	copy(rk[:], h.RatchetPublicKey)
	n := h.MessageNumber
	now := r.cfg.Now()

	st.Skipped.Prune(now, r.cfg.Cache)

	// Skipped cache.
	if mk, ok := st.Skipped.Take(rk, n); ok {
		return open(mk, st, h, ciphertext)
	}

	switch {
	case rk == st.ReceivingRatchetPublic && len(st.ReceiveChainKey) > 0:
		if n <= st.ReceiveCount {
			return nil, r.consumed(st, rk, n)
		}
	case r.retired(st, rk):
		return nil, r.consumed(st, rk, n)
	default:
		if st.SendingRatchetPrivate.IsZero() {
			return nil, domain.Decryption(domain.ErrNoMessageKey)
		}
		if len(st.ReceiveChainKey) > 0 {
			if err := r.skipTo(st, h.PreviousChainLength, now); err != nil {
				return nil, err
			}
			r.retire(st)
		}
		if err := r.stepDH(st, rk); err != nil {
			return nil, err
		}
	}

	if err := r.skipTo(st, n-1, now); err != nil {
		return nil, err
	}
	mk, err := advance(&st.ReceiveChainKey)
	if err != nil {
		return nil, domain.Decryption(err)
	}
	st.ReceiveCount = n
	return open(mk, st, h, ciphertext)
}

// consumed classifies a counter that is neither cached nor derivable.
func (r *Ratchet) consumed(st *domain.RatchetState, rk domain.X25519Public, n uint32) error {
	if st.Skipped.Evicted(rk, n) {
		return domain.Decryption(domain.ErrKeyEvicted)
	}
	if rk == st.ReceivingRatchetPublic {
		return domain.Replay(n)
	}
	for _, m := range st.RetiredChains {
		if m.RatchetKey == rk && n <= m.Length {
			return domain.Replay(n)
		}
	}
	return domain.Decryption(domain.ErrNoMessageKey)
}

func (r *Ratchet) retired(st *domain.RatchetState, rk domain.X25519Public) bool {
	for _, m := range st.RetiredChains {
		if m.RatchetKey == rk {
			return true
		}
	}
	return false
}

func (r *Ratchet) retire(st *domain.RatchetState) {
	st.RetiredChains = append(st.RetiredChains, domain.ChainMark{
		RatchetKey: st.ReceivingRatchetPublic,
		Length:     st.ReceiveCount,
	})
	if len(st.RetiredChains) > maxRetiredChains {
		st.RetiredChains = st.RetiredChains[1:]
	}
}

// skipTo derives and caches receiving keys up to and including until.
func (r *Ratchet) skipTo(st *domain.RatchetState, until uint32, now time.Time) error {
	if until <= st.ReceiveCount {
		return nil
	}
	if until-st.ReceiveCount > r.cfg.MaxSkip {
		return domain.Decryption(fmt.Errorf("%w: %d ahead", domain.ErrTooManySkipped, until-st.ReceiveCount))
	}
	for st.ReceiveCount < until {
		mk, err := advance(&st.ReceiveChainKey)
		if err != nil {
			return domain.Decryption(err)
		}
		st.ReceiveCount++
		st.Skipped.Put(st.ReceivingRatchetPublic, st.ReceiveCount, mk, now, r.cfg.Cache)
	}
	return nil
}

// stepDH runs a full DH ratchet step for a new peer ratchet key.
func (r *Ratchet) stepDH(st *domain.RatchetState, peer domain.X25519Public) error {
	dh, err := crypto.DH(st.SendingRatchetPrivate, peer)
	if err != nil {
		return domain.Decryption(err)
	}
	rk, recvCK, err := kdfRK(st.RootKey, dh[:])
	memzero.Zero(dh[:])
	if err != nil {
		return domain.Decryption(err)
	}
	memzero.Zero(st.RootKey)
	memzero.Zero(st.ReceiveChainKey)
	st.RootKey, st.ReceiveChainKey = rk, recvCK
	st.ReceivingRatchetPublic = peer
	st.ReceiveCount = 0

	memzero.Zero(st.SendChainKey)
	st.SendChainKey = nil
	return r.stepSending(st)
}

// stepSending replaces the sending ratchet pair and derives a new sending chain.
func (r *Ratchet) stepSending(st *domain.RatchetState) error {
	priv, pub, err := crypto.GenerateX25519From(r.cfg.Rand)
	if err != nil {
		return err
	}
	dh, err := crypto.DH(priv, st.ReceivingRatchetPublic)
	if err != nil {
		return err
	}
	rk, sendCK, err := kdfRK(st.RootKey, dh[:])
	memzero.Zero(dh[:])
	if err != nil {
		return err
	}
	memzero.Zero(st.RootKey)
	memzero.Zero(st.SendingRatchetPrivate[:])
	st.RootKey, st.SendChainKey = rk, sendCK
	st.SendingRatchetPrivate, st.SendingRatchetPublic = priv, pub
	st.PreviousSendCount = st.SendCount
	st.SendCount = 0
	return nil
}

func open(mk []byte, st *domain.RatchetState, h domain.RatchetHeader, ciphertext []byte) ([]byte, error) {
	defer memzero.Zero(mk)
	pt, err := crypto.Open(mk, h.MessageNumber, ciphertext, associatedData(st.AssociatedData, h))
	if err != nil {
		return nil, domain.Decryption(domain.ErrAuthentication)
	}
	return pt, nil
}

// associatedData is the session AD followed by the encoded header.
func associatedData(ad []byte, h domain.RatchetHeader) []byte {
	out := make([]byte, 0, len(ad)+len(h.RatchetPublicKey)+8)
	out = append(out, ad...)
	return append(out, headerBytes(h)...)
}

func headerBytes(h domain.RatchetHeader) []byte {
	out := make([]byte, 0, len(h.RatchetPublicKey)+8)
	out = append(out, h.RatchetPublicKey...)
	out = binary.BigEndian.AppendUint32(out, h.MessageNumber)
	return binary.BigEndian.AppendUint32(out, h.PreviousChainLength)
}

func kdfRK(rk, dh []byte) (newRK, ck []byte, err error) {
	okm, err := crypto.HKDF(dh, rk, []byte(rootInfo), 2*keySize)
	if err != nil {
		return nil, nil, err
	}
	return okm[:keySize:keySize], okm[keySize:], nil
}

// advance replaces *ck with the next chain key and returns the message key.
func advance(ck *[]byte) ([]byte, error) {
	if len(*ck) == 0 {
		return nil, errChainUninitialised
	}
	mk := crypto.HMAC(*ck, messageKeySeed)
	next := crypto.HMAC(*ck, chainKeySeed)
	memzero.Zero(*ck)
	*ck = next
	return mk, nil
}

func wipe(st *domain.RatchetState) {
	memzero.Zero(st.RootKey)
	memzero.Zero(st.SendChainKey)
	memzero.Zero(st.ReceiveChainKey)
	memzero.Zero(st.SendingRatchetPrivate[:])
	st.Skipped.Wipe()
}

func clone(b []byte) []byte { return append([]byte(nil), b...) }
