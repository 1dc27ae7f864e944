package keys_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"paircrypt/internal/crypto"
	"paircrypt/internal/domain"
	"paircrypt/internal/keys"
	"paircrypt/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newManager(t *testing.T) (*keys.Manager, *clock) {
	t.Helper()
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m := keys.New(store.NewKeyMemStore(), keys.WithClock(c.now))
	_, err := m.GenerateIdentity()
	require.NoError(t, err)
	return m, c
}

func TestGenerateIdentity_RefusesOverwrite(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.GenerateIdentity()
	require.ErrorIs(t, err, domain.ErrIdentityExists)

	before, err := m.Identity()
	require.NoError(t, err)
	after, err := m.ResetIdentity()
	require.NoError(t, err)
	require.NotEqual(t, before.XPub, after.XPub)

	spk, err := m.CurrentSignedPreKey()
	require.NoError(t, err)
	msg := crypto.SignedPreKeyTranscript(after.XPub, spk.ID, spk.CreatedAt.Unix(), spk.Pub)
	require.True(t, crypto.VerifyEd25519(after.EdPub, msg, spk.Signature))
}

func TestIdentity_Missing(t *testing.T) {
	m := keys.New(store.NewKeyMemStore())
	_, err := m.Identity()
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestRotateSignedPreKey(t *testing.T) {
	m, c := newManager(t)
	id, err := m.Identity()
	require.NoError(t, err)

	_, err = m.CurrentSignedPreKey()
	require.ErrorIs(t, err, domain.ErrKeyNotFound)

	first, err := m.RotateSignedPreKey()
	require.NoError(t, err)
	require.EqualValues(t, 1, first.ID)
	msg := crypto.SignedPreKeyTranscript(id.XPub, first.ID, first.CreatedAt.Unix(), first.Pub)
	require.True(t, crypto.VerifyEd25519(id.EdPub, msg, first.Signature))

	c.advance(7 * 24 * time.Hour)
	second, err := m.RotateSignedPreKey()
	require.NoError(t, err)
	require.EqualValues(t, 2, second.ID)

	cur, err := m.CurrentSignedPreKey()
	require.NoError(t, err)
	require.Equal(t, second.ID, cur.ID)

	// Superseded but inside the grace window.
	old, err := m.SignedPreKey(first.ID)
	require.NoError(t, err)
	require.False(t, old.SupersededAt.IsZero())

	c.advance(49 * time.Hour)
	_, err = m.SignedPreKey(first.ID)
	require.ErrorIs(t, err, domain.ErrSignedPreKeyExpired)

	// The next rotation destroys it.
	_, err = m.RotateSignedPreKey()
	require.NoError(t, err)
	_, err = m.SignedPreKey(first.ID)
	require.ErrorIs(t, err, domain.ErrKeyNotFound)

	_, err = m.SignedPreKey(99)
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestOneTimePreKeys_ConsumeOnce(t *testing.T) {
	m, _ := newManager(t)

	batch, err := m.GenerateOneTimePreKeys(3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	require.EqualValues(t, 1, batch[0].ID)
	require.EqualValues(t, 3, batch[2].ID)

	peek, err := m.OneTimePreKey(2)
	require.NoError(t, err)
	require.Equal(t, batch[1].Pub, peek.Pub)

	priv, err := m.ConsumeOneTimePreKey(2)
	require.NoError(t, err)
	require.Equal(t, batch[1].Priv, priv)

	_, err = m.ConsumeOneTimePreKey(2)
	require.ErrorIs(t, err, domain.ErrPreKeyAlreadyConsumed)
	require.ErrorIs(t, err, domain.ErrKeyNotFound)

	_, err = m.OneTimePreKey(2)
	require.ErrorIs(t, err, domain.ErrPreKeyAlreadyConsumed)

	_, err = m.ConsumeOneTimePreKey(42)
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
	require.NotErrorIs(t, err, domain.ErrPreKeyAlreadyConsumed)

	// Ids are never reused, even after consumption.
	more, err := m.GenerateOneTimePreKeys(1)
	require.NoError(t, err)
	require.EqualValues(t, 4, more[0].ID)
}

func TestOfferOneTimePreKey(t *testing.T) {
	m, _ := newManager(t)

	_, ok, err := m.OfferOneTimePreKey()
	require.NoError(t, err)
	require.False(t, ok)

	_, err = m.GenerateOneTimePreKeys(2)
	require.NoError(t, err)
	n, err := m.AvailableOneTimePreKeys()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rec, ok, err := m.OfferOneTimePreKey()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, rec.ID)
	require.Equal(t, domain.OneTimePreKeyOffered, rec.State)

	n, err = m.AvailableOneTimePreKeys()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Offered keys remain consumable.
	_, err = m.ConsumeOneTimePreKey(rec.ID)
	require.NoError(t, err)
}
