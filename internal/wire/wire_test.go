package wire_test

import (
	"bytes"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"paircrypt/internal/domain"
	"paircrypt/internal/wire"
)

func header() domain.RatchetHeader {
	return domain.RatchetHeader{
		RatchetPublicKey:    bytes.Repeat([]byte{7}, 32),
		MessageNumber:       3,
		PreviousChainLength: 2,
	}
}

func TestSteadyState(t *testing.T) {
	in := &domain.SteadyStateEnvelope{Header: header(), Ciphertext: []byte("sealed")}
	b, err := wire.Encode(in)
	require.NoError(t, err)

	out, err := wire.Decode(b)
	require.NoError(t, err)
	got, ok := out.(*domain.SteadyStateEnvelope)
	require.True(t, ok, "got %T", out)
	require.Equal(t, in, got)
}

func TestInitialHandshake(t *testing.T) {
	opk := domain.OneTimePreKeyID(17)
	in := &domain.InitialHandshakeEnvelope{
		Handshake: domain.HandshakeHeader{
			InitiatorIdentityKey: domain.X25519Public{1},
			InitiatorSigningKey:  domain.Ed25519Public{9},
			EphemeralKey:         domain.X25519Public{2},
			SignedPreKeyID:       4,
			OneTimePreKeyID:      &opk,
		},
		Inner: domain.SteadyStateEnvelope{Header: header(), Ciphertext: []byte("first")},
	}
	b, err := wire.Encode(in)
	require.NoError(t, err)

	out, err := wire.Decode(b)
	require.NoError(t, err)
	got, ok := out.(*domain.InitialHandshakeEnvelope)
	require.True(t, ok, "got %T", out)
	require.Equal(t, in, got)
	require.Equal(t, &in.Inner, got.Message())
}

func TestDecode_Malformed(t *testing.T) {
	hs := &domain.HandshakeHeader{SignedPreKeyID: 1}
	cases := map[string]any{
		"bad version": map[string]any{
			"v": 2, "kind": 1, "header": header(), "ciphertext": []byte{1},
		},
		"unknown kind": map[string]any{
			"v": 1, "kind": 3, "header": header(), "ciphertext": []byte{1},
		},
		"handshake kind without handshake": map[string]any{
			"v": 1, "kind": 2, "header": header(), "ciphertext": []byte{1},
		},
		"steady kind with handshake": map[string]any{
			"v": 1, "kind": 1, "header": header(), "ciphertext": []byte{1}, "handshake": hs,
		},
		"short ratchet key": map[string]any{
			"v": 1, "kind": 1, "header": domain.RatchetHeader{RatchetPublicKey: []byte{1}, MessageNumber: 1},
		},
		"unknown field": map[string]any{
			"v": 1, "kind": 1, "header": header(), "ciphertext": []byte{1}, "extra": true,
		},
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			b, err := cbor.Marshal(v)
			require.NoError(t, err)
			_, err = wire.Decode(b)
			require.ErrorIs(t, err, domain.ErrMalformedEnvelope)
			require.ErrorIs(t, err, domain.ErrDecryptionFailure)
		})
	}

	t.Run("garbage", func(t *testing.T) {
		_, err := wire.Decode([]byte{0xFF, 0x01})
		require.ErrorIs(t, err, domain.ErrMalformedEnvelope)
	})
}
