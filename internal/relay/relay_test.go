package relay_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"paircrypt/internal/domain"
	"paircrypt/internal/relay"
)

func newRelay(t *testing.T) *relay.Client {
	t.Helper()
	srv := httptest.NewServer(relay.NewServer(zerolog.Nop()))
	t.Cleanup(srv.Close)
	c := relay.NewClient(srv.URL + "/")
	c.HTTP = srv.Client()
	return c
}

func sampleBundle() domain.KeyBundle {
	id := domain.OneTimePreKeyID(7)
	opk := domain.X25519Public{9, 9, 9}
	return domain.KeyBundle{
		IdentityKey:           domain.X25519Public{1},
		SigningKey:            domain.Ed25519Public{2},
		SignedPreKeyID:        3,
		SignedPreKey:          domain.X25519Public{4},
		SignedPreKeyCreatedAt: 1700000000,
		SignedPreKeySignature: []byte("sig"),
		OneTimePreKeyID:       &id,
		OneTimePreKey:         &opk,
	}
}

func TestBundleOneTimePreKeyHandedOutOnce(t *testing.T) {
	ctx := context.Background()
	c := newRelay(t)
	bob := domain.Address{Name: "bob", DeviceID: 1}

	require.NoError(t, c.PublishBundle(ctx, bob, sampleBundle()))

	first, err := c.FetchBundle(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, sampleBundle(), first)

	second, err := c.FetchBundle(ctx, bob)
	require.NoError(t, err)
	require.False(t, second.HasOneTimePreKey())
	require.Equal(t, first.SignedPreKey, second.SignedPreKey)
}

func TestFetchBundleUnknown(t *testing.T) {
	c := newRelay(t)
	_, err := c.FetchBundle(context.Background(), domain.Address{Name: "nobody", DeviceID: 1})
	require.ErrorIs(t, err, relay.ErrNotFound)
}

func TestMailboxFetchAndAck(t *testing.T) {
	ctx := context.Background()
	c := newRelay(t)
	alice := domain.Address{Name: "alice", DeviceID: 1}
	bob := domain.Address{Name: "bob", DeviceID: 2}

	for _, m := range []string{"one", "two", "three"} {
		require.NoError(t, c.SendMessage(ctx, alice, bob, []byte(m)))
	}

	items, err := c.FetchMessages(ctx, bob, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, alice, items[0].From)
	require.Equal(t, []byte("one"), items[0].Envelope)
	require.Equal(t, []byte("two"), items[1].Envelope)

	// Fetching does not remove.
	items, err = c.FetchMessages(ctx, bob, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)

	require.NoError(t, c.AckMessages(ctx, bob, 2))
	items, err = c.FetchMessages(ctx, bob, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, []byte("three"), items[0].Envelope)

	require.Error(t, c.AckMessages(ctx, bob, 5))
	require.NoError(t, c.AckMessages(ctx, bob, 1))

	items, err = c.FetchMessages(ctx, bob, 0)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestMailboxesAreSeparatedByDevice(t *testing.T) {
	ctx := context.Background()
	c := newRelay(t)
	alice := domain.Address{Name: "alice", DeviceID: 1}

	require.NoError(t, c.SendMessage(ctx, alice, domain.Address{Name: "bob", DeviceID: 1}, []byte("x")))

	items, err := c.FetchMessages(ctx, domain.Address{Name: "bob", DeviceID: 2}, 0)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestServerRejectsBadInput(t *testing.T) {
	srv := httptest.NewServer(relay.NewServer(zerolog.Nop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/messages/bob.1?limit=-1")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/bundles/bob.x")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	c := relay.NewClient(srv.URL)
	err = c.SendMessage(context.Background(), domain.Address{Name: "a", DeviceID: 1}, domain.Address{Name: "b", DeviceID: 1}, nil)
	require.Error(t, err)
}
