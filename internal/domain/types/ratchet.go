package types

import (
	"time"

	"github.com/google/uuid"

	"paircrypt/internal/protocol/skipcache"
)

// SessionPhase is the lifecycle position of a ratchet session.
type SessionPhase uint8

const (
	// PhaseUninitialized means no session state exists.
	PhaseUninitialized SessionPhase = iota
	// PhaseEstablished means the handshake seeded the keys but no message
	// has been sent or received yet.
	PhaseEstablished
	// PhaseActive is steady-state send/receive.
	PhaseActive
	// PhaseReset is terminal; the session was explicitly torn down.
	PhaseReset
)

func (p SessionPhase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseEstablished:
		return "established"
	case PhaseActive:
		return "active"
	case PhaseReset:
		return "reset"
	}
	return "unknown"
}

// ChainMark remembers how far a retired receiving chain got, so late
// duplicates on it can be told apart from unreachable counters.
type ChainMark struct {
	RatchetKey X25519Public `cbor:"1,keyasint"`
	Length     uint32       `cbor:"2,keyasint"`
}

// RatchetState contains all fields the Double Ratchet needs to track.
type RatchetState struct {
	SessionID uuid.UUID    `cbor:"1,keyasint"`
	Phase     SessionPhase `cbor:"2,keyasint"`

	RootKey                []byte        `cbor:"3,keyasint"`
	SendingRatchetPrivate  X25519Private `cbor:"4,keyasint"`
	SendingRatchetPublic   X25519Public  `cbor:"5,keyasint"`
	ReceivingRatchetPublic X25519Public  `cbor:"6,keyasint"`
	SendChainKey           []byte        `cbor:"7,keyasint,omitempty"`
	ReceiveChainKey        []byte        `cbor:"8,keyasint,omitempty"`
	SendCount              uint32        `cbor:"9,keyasint"`
	ReceiveCount           uint32        `cbor:"10,keyasint"`
	PreviousSendCount      uint32        `cbor:"11,keyasint"`

	// AssociatedData binds both identities (DH and signing keys) into every
	// AEAD call.
	AssociatedData  []byte       `cbor:"12,keyasint"`
	PeerIdentityKey X25519Public `cbor:"13,keyasint"`
	Initiator       bool         `cbor:"14,keyasint"`

	// PendingHandshake is attached to the next outgoing message, then cleared.
	PendingHandshake *HandshakeHeader `cbor:"15,keyasint,omitempty"`

	Skipped       skipcache.Cache `cbor:"16,keyasint"`
	RetiredChains []ChainMark     `cbor:"17,keyasint,omitempty"`

	CreatedAt time.Time `cbor:"18,keyasint"`
	UpdatedAt time.Time `cbor:"19,keyasint"`

	// HandshakeKey is the initiator ephemeral key the session was created
	// from. It survives a reset so the same handshake cannot be accepted twice.
	HandshakeKey X25519Public `cbor:"20,keyasint"`

	// PeerSigningKey is the Ed25519 half of the peer identity.
	PeerSigningKey Ed25519Public `cbor:"21,keyasint"`
}

// Clone returns a deep copy of st.
func (st *RatchetState) Clone() *RatchetState {
	c := *st
	c.RootKey = cloneBytes(st.RootKey)
	c.SendChainKey = cloneBytes(st.SendChainKey)
	c.ReceiveChainKey = cloneBytes(st.ReceiveChainKey)
	c.AssociatedData = cloneBytes(st.AssociatedData)
	if st.PendingHandshake != nil {
		hs := *st.PendingHandshake
		if hs.OneTimePreKeyID != nil {
			id := *hs.OneTimePreKeyID
			hs.OneTimePreKeyID = &id
		}
		c.PendingHandshake = &hs
	}
	c.Skipped = st.Skipped.Clone()
	c.RetiredChains = append([]ChainMark(nil), st.RetiredChains...)
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// SessionHandle names one established session with one peer device. A handle
// becomes stale once a later handshake replaces the session.
type SessionHandle struct {
	Peer      Address
	SessionID uuid.UUID
}

// String returns "peer/session-id".
func (h SessionHandle) String() string { return h.Peer.String() + "/" + h.SessionID.String() }
