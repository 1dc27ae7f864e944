package session_test

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"paircrypt/internal/crypto"
	"paircrypt/internal/domain"
	"paircrypt/internal/keys"
	"paircrypt/internal/services/prekey"
	"paircrypt/internal/services/session"
	"paircrypt/internal/store"
)

type party struct {
	addr     domain.Address
	keys     *keys.Manager
	sessions *store.SessionMemStore
	svc      *session.Service
	pub      *prekey.Publisher
}

func newParty(t *testing.T, name string, opts ...session.Option) *party {
	t.Helper()
	km := keys.New(store.NewKeyMemStore())
	_, err := km.GenerateIdentity()
	require.NoError(t, err)
	sessions := store.NewSessionMemStore()
	return &party{
		addr:     domain.Address{Name: name, DeviceID: 1},
		keys:     km,
		sessions: sessions,
		svc:      session.New(km, sessions, opts...),
		pub:      prekey.New(km),
	}
}

func (p *party) state(t *testing.T, peer *party) *domain.RatchetState {
	t.Helper()
	st, err := p.sessions.LoadSession(peer.addr)
	require.NoError(t, err)
	return st
}

// established runs Scenario A and returns both handles.
func established(t *testing.T, alice, bob *party) (ha, hb domain.SessionHandle) {
	t.Helper()
	bundle, err := bob.pub.PublishBundle()
	require.NoError(t, err)

	ha, err = alice.svc.BeginSession(bob.addr, bundle)
	require.NoError(t, err)

	env, err := alice.svc.Encrypt(ha, []byte("hello"))
	require.NoError(t, err)
	_, ok := env.(*domain.InitialHandshakeEnvelope)
	require.True(t, ok, "first message must carry the handshake, got %T", env)

	hb, err = bob.svc.AcceptSession(alice.addr, env)
	require.NoError(t, err)
	pt, err := bob.svc.Decrypt(hb, env)
	require.NoError(t, err)
	require.Equal(t, "hello", string(pt))
	return ha, hb
}

func TestScenarioA_HandshakeAndFirstMessage(t *testing.T) {
	alice, bob := newParty(t, "alice"), newParty(t, "bob")
	bundle, err := bob.pub.PublishBundle()
	require.NoError(t, err)
	require.True(t, bundle.HasOneTimePreKey())

	ha, err := alice.svc.BeginSession(bob.addr, bundle)
	require.NoError(t, err)
	phase, err := alice.svc.Phase(ha)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseEstablished, phase)

	env, err := alice.svc.Encrypt(ha, []byte("hello"))
	require.NoError(t, err)
	initial, ok := env.(*domain.InitialHandshakeEnvelope)
	require.True(t, ok)
	require.Equal(t, *bundle.OneTimePreKeyID, *initial.Handshake.OneTimePreKeyID)

	hb, err := bob.svc.AcceptSession(alice.addr, env)
	require.NoError(t, err)
	phase, err = bob.svc.Phase(hb)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseEstablished, phase)

	pt, err := bob.svc.Decrypt(hb, env)
	require.NoError(t, err)
	require.Equal(t, "hello", string(pt))

	_, err = bob.keys.OneTimePreKey(*bundle.OneTimePreKeyID)
	require.ErrorIs(t, err, domain.ErrPreKeyAlreadyConsumed)

	phase, err = bob.svc.Phase(hb)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseActive, phase)

	// Only the first message carries the handshake.
	next, err := alice.svc.Encrypt(ha, []byte("again"))
	require.NoError(t, err)
	_, ok = next.(*domain.SteadyStateEnvelope)
	require.True(t, ok)
}

func TestScenarioB_InOrderBurst(t *testing.T) {
	alice, bob := newParty(t, "alice"), newParty(t, "bob")
	ha, hb := established(t, alice, bob)

	for i := 0; i < 5; i++ {
		env, err := alice.svc.Encrypt(ha, []byte(fmt.Sprintf("msg %d", i)))
		require.NoError(t, err)
		pt, err := bob.svc.Decrypt(hb, env)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("msg %d", i), string(pt))
	}

	as, bs := alice.state(t, bob), bob.state(t, alice)
	require.EqualValues(t, 6, as.SendCount)
	require.Equal(t, as.SendCount, bs.ReceiveCount)
	require.Equal(t, as.SendingRatchetPublic, bs.ReceivingRatchetPublic)
	require.Equal(t, 0, bs.Skipped.Len())
}

func TestScenarioC_ReplyTurnsRatchet(t *testing.T) {
	alice, bob := newParty(t, "alice"), newParty(t, "bob")
	ha, hb := established(t, alice, bob)
	before := alice.state(t, bob).SendingRatchetPublic

	reply, err := bob.svc.Encrypt(hb, []byte("hi alice"))
	require.NoError(t, err)
	pt, err := alice.svc.Decrypt(ha, reply)
	require.NoError(t, err)
	require.Equal(t, "hi alice", string(pt))

	after := alice.state(t, bob).SendingRatchetPublic
	require.NotEqual(t, before, after)

	env, err := alice.svc.Encrypt(ha, []byte("and back"))
	require.NoError(t, err)
	require.Equal(t, after[:], env.Message().Header.RatchetPublicKey)
	pt, err = bob.svc.Decrypt(hb, env)
	require.NoError(t, err)
	require.Equal(t, "and back", string(pt))
}

func TestReplayRejected(t *testing.T) {
	alice, bob := newParty(t, "alice"), newParty(t, "bob")
	ha, hb := established(t, alice, bob)

	env, err := alice.svc.Encrypt(ha, []byte("once"))
	require.NoError(t, err)
	_, err = bob.svc.Decrypt(hb, env)
	require.NoError(t, err)
	before := bob.state(t, alice)

	_, err = bob.svc.Decrypt(hb, env)
	require.ErrorIs(t, err, domain.ErrReplayDetected)
	require.ErrorIs(t, err, domain.ErrDecryptionFailure)

	after := bob.state(t, alice)
	require.Equal(t, before.ReceiveCount, after.ReceiveCount)
	require.Equal(t, before.ReceiveChainKey, after.ReceiveChainKey)
}

func TestReplayedHandshake_OneTimePreKeyConsumed(t *testing.T) {
	alice, bob := newParty(t, "alice"), newParty(t, "bob")
	bundle, err := bob.pub.PublishBundle()
	require.NoError(t, err)
	ha, err := alice.svc.BeginSession(bob.addr, bundle)
	require.NoError(t, err)
	env, err := alice.svc.Encrypt(ha, []byte("hello"))
	require.NoError(t, err)

	_, err = bob.svc.AcceptSession(alice.addr, env)
	require.NoError(t, err)
	_, err = bob.svc.AcceptSession(alice.addr, env)
	require.ErrorIs(t, err, domain.ErrPreKeyAlreadyConsumed)
	require.ErrorIs(t, err, domain.ErrHandshakeFailure)
}

func TestReplayedHandshake_WithoutOneTimePreKey(t *testing.T) {
	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	alice := newParty(t, "alice", session.WithLogger(logger))
	bob := newParty(t, "bob")

	bundle, err := bob.pub.PublishBundle()
	require.NoError(t, err)
	bundle.OneTimePreKeyID, bundle.OneTimePreKey = nil, nil

	ha, err := alice.svc.BeginSession(bob.addr, bundle)
	require.NoError(t, err)
	require.Contains(t, logs.String(), `"event":"reduced_security"`)

	env, err := alice.svc.Encrypt(ha, []byte("hello"))
	require.NoError(t, err)
	hb, err := bob.svc.AcceptSession(alice.addr, env)
	require.NoError(t, err)
	_, err = bob.svc.Decrypt(hb, env)
	require.NoError(t, err)

	_, err = bob.svc.AcceptSession(alice.addr, env)
	require.ErrorIs(t, err, domain.ErrReplayDetected)
	require.ErrorIs(t, err, domain.ErrHandshakeFailure)

	// The live session survives the replay attempt.
	h, ok, err := bob.svc.Handle(alice.addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hb, h)
}

func TestAcceptSession_TamperedMessageKeepsPreKey(t *testing.T) {
	alice, bob := newParty(t, "alice"), newParty(t, "bob")
	bundle, err := bob.pub.PublishBundle()
	require.NoError(t, err)
	ha, err := alice.svc.BeginSession(bob.addr, bundle)
	require.NoError(t, err)
	env, err := alice.svc.Encrypt(ha, []byte("hello"))
	require.NoError(t, err)

	initial := env.(*domain.InitialHandshakeEnvelope)
	forged := *initial
	forged.Inner.Ciphertext = append([]byte(nil), initial.Inner.Ciphertext...)
	forged.Inner.Ciphertext[0] ^= 1

	_, err = bob.svc.AcceptSession(alice.addr, &forged)
	require.ErrorIs(t, err, domain.ErrHandshakeFailure)
	require.ErrorIs(t, err, domain.ErrAuthentication)

	_, err = bob.keys.OneTimePreKey(*bundle.OneTimePreKeyID)
	require.NoError(t, err, "a forged handshake must not burn the one-time pre-key")
	_, ok, err := bob.svc.Handle(alice.addr)
	require.NoError(t, err)
	require.False(t, ok)

	// The genuine envelope still works.
	hb, err := bob.svc.AcceptSession(alice.addr, env)
	require.NoError(t, err)
	pt, err := bob.svc.Decrypt(hb, env)
	require.NoError(t, err)
	require.Equal(t, "hello", string(pt))
}

// readOnlyPreKeys fails one-time pre-key writes while fail is set.
type readOnlyPreKeys struct {
	*store.KeyMemStore
	fail bool
}

func (r *readOnlyPreKeys) SaveOneTimePreKeys(recs []domain.OneTimePreKeyRecord) error {
	if r.fail {
		return domain.Storage("save one-time pre-keys", errors.New("read-only"))
	}
	return r.KeyMemStore.SaveOneTimePreKeys(recs)
}

func TestAcceptSession_FailedConsumeRestoresSession(t *testing.T) {
	alice := newParty(t, "alice")

	ks := &readOnlyPreKeys{KeyMemStore: store.NewKeyMemStore()}
	km := keys.New(ks)
	_, err := km.GenerateIdentity()
	require.NoError(t, err)
	bobAddr := domain.Address{Name: "bob", DeviceID: 1}
	bob := session.New(km, store.NewSessionMemStore())

	bundle, err := prekey.New(km).PublishBundle()
	require.NoError(t, err)
	ha, err := alice.svc.BeginSession(bobAddr, bundle)
	require.NoError(t, err)
	env, err := alice.svc.Encrypt(ha, []byte("hello"))
	require.NoError(t, err)

	ks.fail = true
	_, err = bob.AcceptSession(alice.addr, env)
	require.ErrorIs(t, err, domain.ErrStorageFailure)
	require.True(t, domain.Retriable(err))
	_, ok, err := bob.Handle(alice.addr)
	require.NoError(t, err)
	require.False(t, ok, "no session may survive a failed consume")

	ks.fail = false
	hb, err := bob.AcceptSession(alice.addr, env)
	require.NoError(t, err)
	pt, err := bob.Decrypt(hb, env)
	require.NoError(t, err)
	require.Equal(t, "hello", string(pt))
}

func TestAcceptSession_RejectsSteadyState(t *testing.T) {
	bob := newParty(t, "bob")
	_, err := bob.svc.AcceptSession(domain.Address{Name: "alice", DeviceID: 1}, &domain.SteadyStateEnvelope{})
	require.ErrorIs(t, err, domain.ErrNotHandshake)
	require.ErrorIs(t, err, domain.ErrHandshakeFailure)
}

func TestAcceptSession_UnknownSignedPreKey(t *testing.T) {
	alice, bob := newParty(t, "alice"), newParty(t, "bob")
	bundle, err := bob.pub.PublishBundle()
	require.NoError(t, err)
	ha, err := alice.svc.BeginSession(bob.addr, bundle)
	require.NoError(t, err)
	env, err := alice.svc.Encrypt(ha, []byte("hello"))
	require.NoError(t, err)

	initial := env.(*domain.InitialHandshakeEnvelope)
	initial.Handshake.SignedPreKeyID = 77
	_, err = bob.svc.AcceptSession(alice.addr, initial)
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
	require.ErrorIs(t, err, domain.ErrHandshakeFailure)
}

func TestBeginSession_InvalidBundle(t *testing.T) {
	alice, bob := newParty(t, "alice"), newParty(t, "bob")
	bundle, err := bob.pub.PublishBundle()
	require.NoError(t, err)
	mallory := newParty(t, "mallory")
	fake, err := mallory.pub.PublishBundle()
	require.NoError(t, err)

	// A directory substitutes its own signed pre-key.
	bundle.SignedPreKey = fake.SignedPreKey
	_, err = alice.svc.BeginSession(bob.addr, bundle)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
	require.ErrorIs(t, err, domain.ErrHandshakeFailure)

	_, ok, err := alice.svc.Handle(bob.addr)
	require.NoError(t, err)
	require.False(t, ok)
}

// forgeBundle returns a bundle that keeps victim's identity key but carries
// mallory's signing key and a pre-key signed by it.
func forgeBundle(t *testing.T, victim, mallory *party) domain.KeyBundle {
	t.Helper()
	genuine, err := victim.pub.PublishBundle()
	require.NoError(t, err)
	forged, err := mallory.pub.PublishBundle()
	require.NoError(t, err)
	id, err := mallory.keys.Identity()
	require.NoError(t, err)
	forged.IdentityKey = genuine.IdentityKey
	forged.SignedPreKeySignature = crypto.SignEd25519(id.EdPriv, crypto.SignedPreKeyTranscript(
		forged.IdentityKey, forged.SignedPreKeyID, forged.SignedPreKeyCreatedAt, forged.SignedPreKey))
	return forged
}

func TestBeginSession_SwappedSigningKey(t *testing.T) {
	alice, bob, mallory := newParty(t, "alice"), newParty(t, "bob"), newParty(t, "mallory")
	ha, _ := established(t, alice, bob)

	forged := forgeBundle(t, bob, mallory)
	_, err := alice.svc.BeginSession(bob.addr, forged)
	require.ErrorIs(t, err, domain.ErrHandshakeFailure)
	require.ErrorIs(t, err, domain.ErrSigningKeyMismatch)

	// The pinned session is untouched.
	h, ok, err := alice.svc.Handle(bob.addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ha, h)
	bobID, err := bob.keys.Identity()
	require.NoError(t, err)
	require.Equal(t, bobID.EdPub, alice.state(t, bob).PeerSigningKey)
}

func TestBeginSession_ForgedBundleFailsAtResponder(t *testing.T) {
	alice, bob, mallory := newParty(t, "alice"), newParty(t, "bob"), newParty(t, "mallory")

	// Nothing is pinned on first contact, but the handshake cannot
	// complete without Bob's real signed pre-key.
	forged := forgeBundle(t, bob, mallory)
	ha, err := alice.svc.BeginSession(bob.addr, forged)
	require.NoError(t, err)
	env, err := alice.svc.Encrypt(ha, []byte("hello"))
	require.NoError(t, err)

	_, err = bob.svc.AcceptSession(alice.addr, env)
	require.ErrorIs(t, err, domain.ErrHandshakeFailure)
	_, ok, err := bob.svc.Handle(alice.addr)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAcceptSession_SwappedSigningKey(t *testing.T) {
	alice, bob, mallory := newParty(t, "alice"), newParty(t, "bob"), newParty(t, "mallory")
	_, hb := established(t, alice, bob)

	bundle, err := bob.pub.PublishBundle()
	require.NoError(t, err)
	ha, err := alice.svc.BeginSession(bob.addr, bundle)
	require.NoError(t, err)
	env, err := alice.svc.Encrypt(ha, []byte("again"))
	require.NoError(t, err)

	id, err := mallory.keys.Identity()
	require.NoError(t, err)
	initial := env.(*domain.InitialHandshakeEnvelope)
	swapped := *initial
	swapped.Handshake.InitiatorSigningKey = id.EdPub
	_, err = bob.svc.AcceptSession(alice.addr, &swapped)
	require.ErrorIs(t, err, domain.ErrHandshakeFailure)
	require.ErrorIs(t, err, domain.ErrSigningKeyMismatch)

	h, ok, err := bob.svc.Handle(alice.addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hb, h)
}

func TestDecrypt_NilEnvelope(t *testing.T) {
	alice, bob := newParty(t, "alice"), newParty(t, "bob")
	_, hb := established(t, alice, bob)
	_, err := bob.svc.Decrypt(hb, nil)
	require.ErrorIs(t, err, domain.ErrDecryptionFailure)
	require.ErrorIs(t, err, domain.ErrMalformedEnvelope)
}

func TestStaleHandle(t *testing.T) {
	alice, bob := newParty(t, "alice"), newParty(t, "bob")
	bundle, err := bob.pub.PublishBundle()
	require.NoError(t, err)

	old, err := alice.svc.BeginSession(bob.addr, bundle)
	require.NoError(t, err)
	bundle2, err := bob.pub.PublishBundle()
	require.NoError(t, err)
	cur, err := alice.svc.BeginSession(bob.addr, bundle2)
	require.NoError(t, err)
	require.NotEqual(t, old.SessionID, cur.SessionID)

	_, err = alice.svc.Encrypt(old, []byte("x"))
	require.ErrorIs(t, err, domain.ErrStaleSession)
	_, err = alice.svc.Phase(old)
	require.ErrorIs(t, err, domain.ErrStaleSession)
	require.ErrorIs(t, alice.svc.ResetSession(old), domain.ErrStaleSession)

	_, err = alice.svc.Encrypt(cur, []byte("x"))
	require.NoError(t, err)
}

func TestResetSession(t *testing.T) {
	alice, bob := newParty(t, "alice"), newParty(t, "bob")
	ha, hb := established(t, alice, bob)

	env, err := alice.svc.Encrypt(ha, []byte("late"))
	require.NoError(t, err)

	require.NoError(t, bob.svc.ResetSession(hb))
	require.NoError(t, bob.svc.ResetSession(hb))

	phase, err := bob.svc.Phase(hb)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseReset, phase)

	_, err = bob.svc.Decrypt(hb, env)
	require.ErrorIs(t, err, domain.ErrSessionReset)
	require.ErrorIs(t, err, domain.ErrDecryptionFailure)
	_, err = bob.svc.Encrypt(hb, []byte("x"))
	require.ErrorIs(t, err, domain.ErrSessionReset)

	st := bob.state(t, alice)
	require.Equal(t, make([]byte, len(st.RootKey)), st.RootKey)
	require.True(t, st.SendingRatchetPrivate.IsZero())

	_, ok, err := bob.svc.Handle(alice.addr)
	require.NoError(t, err)
	require.False(t, ok)

	// A fresh handshake replaces the tombstone.
	ha2, hb2 := established(t, alice, bob)
	require.NotEqual(t, hb.SessionID, hb2.SessionID)
	env, err = alice.svc.Encrypt(ha2, []byte("after reset"))
	require.NoError(t, err)
	pt, err := bob.svc.Decrypt(hb2, env)
	require.NoError(t, err)
	require.Equal(t, "after reset", string(pt))
}

func TestConcurrentEncryptSamePeer(t *testing.T) {
	alice, bob := newParty(t, "alice"), newParty(t, "bob")
	ha, hb := established(t, alice, bob)

	const n = 50
	envs := make([]domain.Envelope, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			env, err := alice.svc.Encrypt(ha, []byte(fmt.Sprintf("m%d", i)))
			if err == nil {
				envs[i] = env
			}
		}(i)
	}
	wg.Wait()

	seen := map[uint32]bool{}
	for i, env := range envs {
		require.NotNil(t, env, "encrypt %d failed", i)
		seen[env.Message().Header.MessageNumber] = true
	}
	require.Len(t, seen, n, "message numbers must be unique")

	// Delivery in any order within the skip bound decrypts.
	for i := n - 1; i >= 0; i-- {
		pt, err := bob.svc.Decrypt(hb, envs[i])
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("m%d", i), string(pt))
	}
}

func TestConcurrentDifferentPeers(t *testing.T) {
	alice := newParty(t, "alice")
	peers := make([]*party, 4)
	handles := make([]domain.SessionHandle, len(peers))
	for i := range peers {
		peers[i] = newParty(t, fmt.Sprintf("peer%d", i))
		handles[i], _ = established(t, alice, peers[i])
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(peers)*10)
	for i := range peers {
		wg.Add(1)
		go func(h domain.SessionHandle) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, err := alice.svc.Encrypt(h, []byte("x")); err != nil {
					errs <- err
				}
			}
		}(handles[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	for i, p := range peers {
		require.EqualValues(t, 11, alice.state(t, p).SendCount, "peer %d", i)
	}
}
