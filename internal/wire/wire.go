package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"paircrypt/internal/domain"
)

// Version is the only envelope version this package speaks.
const Version = 1

type kind uint8

const (
	kindSteadyState kind = 1
	kindHandshake   kind = 2
)

type record struct {
	V          uint                    `cbor:"v"`
	Kind       kind                    `cbor:"kind"`
	Header     domain.RatchetHeader    `cbor:"header"`
	Ciphertext []byte                  `cbor:"ciphertext"`
	Handshake  *domain.HandshakeHeader `cbor:"handshake,omitempty"`
}

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxNestedLevels:   8,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// Encode serialises env.
func Encode(env domain.Envelope) ([]byte, error) {
	var r record
	switch e := env.(type) {
	case *domain.SteadyStateEnvelope:
		r = record{V: Version, Kind: kindSteadyState, Header: e.Header, Ciphertext: e.Ciphertext}
	case *domain.InitialHandshakeEnvelope:
		hs := e.Handshake
		r = record{V: Version, Kind: kindHandshake, Header: e.Inner.Header, Ciphertext: e.Inner.Ciphertext, Handshake: &hs}
	default:
		return nil, fmt.Errorf("wire: unsupported envelope %T", env)
	}
	return encMode.Marshal(r)
}

// Decode parses b. Every failure wraps domain.ErrMalformedEnvelope and
// domain.ErrDecryptionFailure.
func Decode(b []byte) (domain.Envelope, error) {
	var r record
	if err := decMode.Unmarshal(b, &r); err != nil {
		return nil, malformed("%v", err)
	}
	if r.V != Version {
		return nil, malformed("unsupported version %d", r.V)
	}
	if len(r.Header.RatchetPublicKey) != 32 {
		return nil, malformed("ratchet key is %d bytes", len(r.Header.RatchetPublicKey))
	}
	msg := domain.SteadyStateEnvelope{Header: r.Header, Ciphertext: r.Ciphertext}

	switch r.Kind {
	case kindSteadyState:
		if r.Handshake != nil {
			return nil, malformed("steady-state envelope carries a handshake")
		}
		return &msg, nil
	case kindHandshake:
		if r.Handshake == nil {
			return nil, malformed("handshake envelope without handshake")
		}
		return &domain.InitialHandshakeEnvelope{Handshake: *r.Handshake, Inner: msg}, nil
	}
	return nil, malformed("unknown kind %d", r.Kind)
}

func malformed(format string, args ...any) error {
	return domain.Decryption(fmt.Errorf("%w: "+format, append([]any{domain.ErrMalformedEnvelope}, args...)...))
}
