package interfaces

import (
	"context"

	domaintypes "paircrypt/internal/domain/types"
)

// RelayClient is how we talk to the directory and mailbox service.
type RelayClient interface {
	PublishBundle(ctx context.Context, addr domaintypes.Address, bundle domaintypes.KeyBundle) error
	FetchBundle(ctx context.Context, addr domaintypes.Address) (domaintypes.KeyBundle, error)

	// SendMessage posts an encoded envelope for to.
	SendMessage(ctx context.Context, from, to domaintypes.Address, envelope []byte) error
	// FetchMessages returns up to limit queued items for addr, oldest first,
	// without removing them. limit <= 0 means all.
	FetchMessages(ctx context.Context, addr domaintypes.Address, limit int) ([]domaintypes.MailboxItem, error)
	// AckMessages removes the oldest count items from the mailbox of addr.
	AckMessages(ctx context.Context, addr domaintypes.Address, count int) error
}
