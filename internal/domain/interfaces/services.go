package interfaces

import (
	"context"

	domaintypes "paircrypt/internal/domain/types"
)

// IdentityService creates, retrieves, and inspects your identity keys.
type IdentityService interface {
	GenerateIdentity() (domaintypes.Identity, domaintypes.Fingerprint, error)
	LoadIdentity() (domaintypes.Identity, error)
	FingerprintIdentity() (domaintypes.Fingerprint, error)
}

// PreKeyService assembles your key bundle for publication.
type PreKeyService interface {
	PublishBundle() (domaintypes.KeyBundle, error)
}

// SessionService is the core entry point: handshakes plus per-message
// encrypt/decrypt, serialised per peer device.
type SessionService interface {
	BeginSession(peer domaintypes.Address, bundle domaintypes.KeyBundle) (domaintypes.SessionHandle, error)
	AcceptSession(peer domaintypes.Address, envelope domaintypes.Envelope) (domaintypes.SessionHandle, error)
	Encrypt(h domaintypes.SessionHandle, plaintext []byte) (domaintypes.Envelope, error)
	Decrypt(h domaintypes.SessionHandle, envelope domaintypes.Envelope) ([]byte, error)
	ResetSession(h domaintypes.SessionHandle) error
	Phase(h domaintypes.SessionHandle) (domaintypes.SessionPhase, error)
	Handle(peer domaintypes.Address) (domaintypes.SessionHandle, bool, error)
}

// MessageService encrypts, sends, fetches and decrypts messages.
type MessageService interface {
	SendMessage(ctx context.Context, to domaintypes.Address, plaintext []byte) error
	ReceiveMessages(ctx context.Context) ([]domaintypes.DecryptedMessage, error)
}
