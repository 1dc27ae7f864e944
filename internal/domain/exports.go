package domain

import (
	interfaces "paircrypt/internal/domain/interfaces"
	types "paircrypt/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Address                  = types.Address
	Fingerprint              = types.Fingerprint
	SignedPreKeyID           = types.SignedPreKeyID
	OneTimePreKeyID          = types.OneTimePreKeyID
	OneTimePreKeyState       = types.OneTimePreKeyState
	Identity                 = types.Identity
	SignedPreKeyRecord       = types.SignedPreKeyRecord
	OneTimePreKeyRecord      = types.OneTimePreKeyRecord
	KeyBundle                = types.KeyBundle
	RatchetHeader            = types.RatchetHeader
	HandshakeHeader          = types.HandshakeHeader
	Envelope                 = types.Envelope
	SteadyStateEnvelope      = types.SteadyStateEnvelope
	InitialHandshakeEnvelope = types.InitialHandshakeEnvelope
	DecryptedMessage         = types.DecryptedMessage
	MailboxItem              = types.MailboxItem
	RatchetState             = types.RatchetState
	SessionPhase             = types.SessionPhase
	SessionHandle            = types.SessionHandle
	ChainMark                = types.ChainMark
	X25519Public             = types.X25519Public
	X25519Private            = types.X25519Private
	Ed25519Public            = types.Ed25519Public
	Ed25519Private           = types.Ed25519Private
)

// Re-exported constants.
const (
	DefaultDeviceID = types.DefaultDeviceID

	OneTimePreKeyAvailable = types.OneTimePreKeyAvailable
	OneTimePreKeyOffered   = types.OneTimePreKeyOffered
	OneTimePreKeyConsumed  = types.OneTimePreKeyConsumed

	PhaseUninitialized = types.PhaseUninitialized
	PhaseEstablished   = types.PhaseEstablished
	PhaseActive        = types.PhaseActive
	PhaseReset         = types.PhaseReset
)

// ParseAddress parses "name" or "name.device".
func ParseAddress(s string) (Address, error) { return types.ParseAddress(s) }

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	IdentityService = interfaces.IdentityService
	PreKeyService   = interfaces.PreKeyService
	SessionService  = interfaces.SessionService
	MessageService  = interfaces.MessageService
	RelayClient     = interfaces.RelayClient
	IdentityStore   = interfaces.IdentityStore
	PreKeyStore     = interfaces.PreKeyStore
	KeyStore        = interfaces.KeyStore
	SessionStore    = interfaces.SessionStore
)
