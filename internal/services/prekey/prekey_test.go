package prekey_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"paircrypt/internal/domain"
	"paircrypt/internal/keys"
	"paircrypt/internal/services/prekey"
	"paircrypt/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func setup(t *testing.T) (*keys.Manager, *prekey.Publisher, *clock) {
	t.Helper()
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m := keys.New(store.NewKeyMemStore(), keys.WithClock(c.now), keys.WithPolicy(keys.Policy{
		RotationInterval: 7 * 24 * time.Hour,
		GraceWindow:      48 * time.Hour,
		OneTimeBatch:     5,
		LowWater:         2,
	}))
	_, err := m.GenerateIdentity()
	require.NoError(t, err)
	return m, prekey.New(m, prekey.WithClock(c.now)), c
}

func TestPublishBundle_FirstPublish(t *testing.T) {
	m, p, c := setup(t)

	b, err := p.PublishBundle()
	require.NoError(t, err)
	require.True(t, b.HasOneTimePreKey())
	require.EqualValues(t, 1, b.SignedPreKeyID)
	require.NoError(t, prekey.ValidateBundle(b, c.now(), m.Policy()))

	n, err := m.AvailableOneTimePreKeys()
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestPublishBundle_OffersDistinctKeysAndReplenishes(t *testing.T) {
	m, p, _ := setup(t)

	seen := map[domain.OneTimePreKeyID]bool{}
	for i := 0; i < 8; i++ {
		b, err := p.PublishBundle()
		require.NoError(t, err)
		require.True(t, b.HasOneTimePreKey(), "exhaustion must replenish before publishing")
		require.False(t, seen[*b.OneTimePreKeyID], "one-time pre-key offered twice")
		seen[*b.OneTimePreKeyID] = true
	}
	n, err := m.AvailableOneTimePreKeys()
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 1)
}

func TestPublishBundle_RotatesWhenDue(t *testing.T) {
	_, p, c := setup(t)

	first, err := p.PublishBundle()
	require.NoError(t, err)

	c.t = c.t.Add(6 * 24 * time.Hour)
	same, err := p.PublishBundle()
	require.NoError(t, err)
	require.Equal(t, first.SignedPreKeyID, same.SignedPreKeyID)

	c.t = c.t.Add(24 * time.Hour)
	rotated, err := p.PublishBundle()
	require.NoError(t, err)
	require.NotEqual(t, first.SignedPreKeyID, rotated.SignedPreKeyID)
}

func TestValidateBundle(t *testing.T) {
	m, p, c := setup(t)
	good, err := p.PublishBundle()
	require.NoError(t, err)
	policy := m.Policy()

	t.Run("tampered signed pre-key", func(t *testing.T) {
		b := good
		b.SignedPreKey[3] ^= 0x10
		err := prekey.ValidateBundle(b, c.now(), policy)
		require.ErrorIs(t, err, domain.ErrInvalidSignature)
		require.ErrorIs(t, err, domain.ErrHandshakeFailure)
	})

	t.Run("forged creation time", func(t *testing.T) {
		b := good
		b.SignedPreKeyCreatedAt += 60
		require.ErrorIs(t, prekey.ValidateBundle(b, c.now(), policy), domain.ErrInvalidSignature)
	})

	t.Run("expired", func(t *testing.T) {
		later := c.now().Add(policy.SignedPreKeyLifetime() + time.Second)
		require.ErrorIs(t, prekey.ValidateBundle(good, later, policy), domain.ErrSignedPreKeyExpired)
	})

	t.Run("inside grace window", func(t *testing.T) {
		later := c.now().Add(policy.SignedPreKeyLifetime() - time.Second)
		require.NoError(t, prekey.ValidateBundle(good, later, policy))
	})

	t.Run("dated in the future", func(t *testing.T) {
		earlier := c.now().Add(-time.Hour)
		require.ErrorIs(t, prekey.ValidateBundle(good, earlier, policy), domain.ErrMalformedBundle)
	})

	t.Run("half-present one-time pre-key", func(t *testing.T) {
		b := good
		b.OneTimePreKey = nil
		require.ErrorIs(t, prekey.ValidateBundle(b, c.now(), policy), domain.ErrMalformedBundle)
	})

	t.Run("no one-time pre-key is fine", func(t *testing.T) {
		b := good
		b.OneTimePreKey, b.OneTimePreKeyID = nil, nil
		require.NoError(t, prekey.ValidateBundle(b, c.now(), policy))
	})
}
