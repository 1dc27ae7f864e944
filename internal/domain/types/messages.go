package types

// RatchetHeader is sent in cleartext alongside every ciphertext.
type RatchetHeader struct {
	RatchetPublicKey    []byte `json:"dh_pub" cbor:"1,keyasint"`
	MessageNumber       uint32 `json:"n" cbor:"2,keyasint"`
	PreviousChainLength uint32 `json:"pn" cbor:"3,keyasint"`
}

// HandshakeHeader carries the X3DH parameters an initiator attaches to the
// first message of a session.
type HandshakeHeader struct {
	InitiatorIdentityKey X25519Public     `json:"identity_key" cbor:"1,keyasint"`
	EphemeralKey         X25519Public     `json:"ephemeral_key" cbor:"2,keyasint"`
	SignedPreKeyID       SignedPreKeyID   `json:"signed_pre_key_id" cbor:"3,keyasint"`
	OneTimePreKeyID      *OneTimePreKeyID `json:"one_time_pre_key_id,omitempty" cbor:"4,keyasint,omitempty"`
	InitiatorSigningKey  Ed25519Public    `json:"signing_key" cbor:"5,keyasint"`
}

// Envelope is the wire-visible unit. It is one of *SteadyStateEnvelope or
// *InitialHandshakeEnvelope.
type Envelope interface {
	// Message returns the ratchet header and ciphertext.
	Message() *SteadyStateEnvelope
	isEnvelope()
}

// SteadyStateEnvelope is an ordinary ratchet message.
type SteadyStateEnvelope struct {
	Header     RatchetHeader `json:"header"`
	Ciphertext []byte        `json:"ciphertext"`
}

// Message implements Envelope.
func (e *SteadyStateEnvelope) Message() *SteadyStateEnvelope { return e }
func (*SteadyStateEnvelope) isEnvelope()                     {}

// InitialHandshakeEnvelope is the first message of a session; it lets the
// responder complete its half of the handshake.
type InitialHandshakeEnvelope struct {
	Handshake HandshakeHeader     `json:"handshake"`
	Inner     SteadyStateEnvelope `json:"message"`
}

// Message implements Envelope.
func (e *InitialHandshakeEnvelope) Message() *SteadyStateEnvelope { return &e.Inner }
func (*InitialHandshakeEnvelope) isEnvelope()                     {}

// DecryptedMessage is what MessageService.Receive returns.
type DecryptedMessage struct {
	From      Address `json:"from"`
	Plaintext []byte  `json:"plaintext"`
	Timestamp int64   `json:"timestamp"`
}

// MailboxItem is one queued envelope as held by the directory.
type MailboxItem struct {
	From      Address `json:"from"`
	Envelope  []byte  `json:"envelope"`
	Timestamp int64   `json:"timestamp"`
}
