package x3dh

import (
	"bytes"
	"errors"
	"io"

	"paircrypt/internal/crypto"
	"paircrypt/internal/domain"
	"paircrypt/internal/util/memzero"
)

const (
	kdfInfo = "paircrypt/x3dh/v1"
	keySize = 32
)

var (
	errMissingOneTimePreKey    = errors.New("handshake references a one-time pre-key that was not supplied")
	errUnexpectedOneTimePreKey = errors.New("one-time pre-key supplied for a handshake that does not use one")
	errMissingSigningKey       = errors.New("handshake carries no initiator signing key")
)

// Result is the shared secret both parties derive.
type Result struct {
	RootKey  []byte
	ChainKey []byte
	// AssociatedData is IK_initiator || Ed_initiator || IK_responder ||
	// Ed_responder, so both halves of each identity are bound to the session.
	AssociatedData []byte
}

// Initiation is what the initiator keeps after running X3DH.
type Initiation struct {
	Result
	Handshake        domain.HandshakeHeader
	EphemeralPrivate domain.X25519Private
	EphemeralPublic  domain.X25519Public
}

// Initiate runs the initiator side against a validated bundle.
func Initiate(id domain.Identity, bundle domain.KeyBundle, rand io.Reader) (Initiation, error) {
	ephPriv, ephPub, err := crypto.GenerateX25519From(rand)
	if err != nil {
		return Initiation{}, domain.Handshake(err)
	}

	var opk *domain.X25519Public
	if bundle.HasOneTimePreKey() {
		opk = bundle.OneTimePreKey
	}

	dhs, err := agree(
		pair{id.XPriv, bundle.SignedPreKey}, // DH(IKA, SPKB)
		pair{ephPriv, bundle.IdentityKey},   // DH(EKA, IKB)
		pair{ephPriv, bundle.SignedPreKey},  // DH(EKA, SPKB)
		optional(ephPriv, opk),              // DH(EKA, OPKB)
	)
	if err != nil {
		return Initiation{}, domain.Handshake(err)
	}
	res, err := derive(dhs, id.XPub, id.EdPub, bundle.IdentityKey, bundle.SigningKey)
	if err != nil {
		return Initiation{}, domain.Handshake(err)
	}

	hs := domain.HandshakeHeader{
		InitiatorIdentityKey: id.XPub,
		InitiatorSigningKey:  id.EdPub,
		EphemeralKey:         ephPub,
		SignedPreKeyID:       bundle.SignedPreKeyID,
	}
	if opk != nil {
		opkID := *bundle.OneTimePreKeyID
		hs.OneTimePreKeyID = &opkID
	}
	return Initiation{
		Result:           res,
		Handshake:        hs,
		EphemeralPrivate: ephPriv,
		EphemeralPublic:  ephPub,
	}, nil
}

// Respond runs the responder side. opkPriv must be non-nil exactly when the
// handshake names a one-time pre-key.
func Respond(
	id domain.Identity,
	spkPriv domain.X25519Private,
	opkPriv *domain.X25519Private,
	hs domain.HandshakeHeader,
) (Result, error) {
	switch {
	case hs.OneTimePreKeyID != nil && opkPriv == nil:
		return Result{}, domain.Handshake(errMissingOneTimePreKey)
	case hs.OneTimePreKeyID == nil && opkPriv != nil:
		return Result{}, domain.Handshake(errUnexpectedOneTimePreKey)
	case hs.InitiatorSigningKey == (domain.Ed25519Public{}):
		return Result{}, domain.Handshake(errMissingSigningKey)
	}

	var fourth pair
	if opkPriv != nil {
		fourth = pair{*opkPriv, hs.EphemeralKey} // DH(OPKB, EKA)
	}
	dhs, err := agree(
		pair{spkPriv, hs.InitiatorIdentityKey}, // DH(SPKB, IKA)
		pair{id.XPriv, hs.EphemeralKey},        // DH(IKB, EKA)
		pair{spkPriv, hs.EphemeralKey},         // DH(SPKB, EKA)
		fourth,
	)
	if err != nil {
		return Result{}, domain.Handshake(err)
	}
	res, err := derive(dhs, hs.InitiatorIdentityKey, hs.InitiatorSigningKey, id.XPub, id.EdPub)
	if err != nil {
		return Result{}, domain.Handshake(err)
	}
	return res, nil
}

// VerifySignedPreKey checks the bundle's signed pre-key signature against
// its signing key. The transcript includes the identity DH key, so the
// signature also binds the two halves of the identity together. Whether the
// signing key really belongs to the peer is settled by the fingerprint and,
// for known peers, by the session service.
func VerifySignedPreKey(b domain.KeyBundle) bool {
	msg := crypto.SignedPreKeyTranscript(b.IdentityKey, b.SignedPreKeyID, b.SignedPreKeyCreatedAt, b.SignedPreKey)
	return crypto.VerifyEd25519(b.SigningKey, msg, b.SignedPreKeySignature)
}

type pair struct {
	priv domain.X25519Private
	pub  domain.X25519Public
}

func (p pair) empty() bool { return p.priv.IsZero() && p.pub.IsZero() }

func optional(priv domain.X25519Private, pub *domain.X25519Public) pair {
	if pub == nil {
		return pair{}
	}
	return pair{priv, *pub}
}

// agree concatenates the DH outputs in order, skipping empty pairs.
func agree(pairs ...pair) ([]byte, error) {
	out := make([]byte, 0, 32*len(pairs))
	for _, p := range pairs {
		if p.empty() {
			continue
		}
		s, err := crypto.DH(p.priv, p.pub)
		if err != nil {
			memzero.Zero(out)
			return nil, err
		}
		out = append(out, s[:]...)
		memzero.Zero(s[:])
	}
	return out, nil
}

func derive(
	dhs []byte,
	initiatorIK domain.X25519Public, initiatorEd domain.Ed25519Public,
	responderIK domain.X25519Public, responderEd domain.Ed25519Public,
) (Result, error) {
	defer memzero.Zero(dhs)

	ikm := append(bytes.Repeat([]byte{0xFF}, keySize), dhs...)
	defer memzero.Zero(ikm)

	okm, err := crypto.HKDF(ikm, make([]byte, keySize), []byte(kdfInfo), 2*keySize)
	if err != nil {
		return Result{}, err
	}
	ad := make([]byte, 0, 128)
	ad = append(ad, initiatorIK[:]...)
	ad = append(ad, initiatorEd[:]...)
	ad = append(ad, responderIK[:]...)
	ad = append(ad, responderEd[:]...)
	return Result{
		RootKey:        okm[:keySize:keySize],
		ChainKey:       okm[keySize:],
		AssociatedData: ad,
	}, nil
}
