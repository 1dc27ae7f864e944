package app

import (
	"os"

	"github.com/rs/zerolog"

	"paircrypt/internal/keys"
	"paircrypt/internal/relay"
	identitysvc "paircrypt/internal/services/identity"
	messagesvc "paircrypt/internal/services/message"
	prekeysvc "paircrypt/internal/services/prekey"
	sessionsvc "paircrypt/internal/services/session"
	"paircrypt/internal/store"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Keys     *keys.Manager
	Identity *identitysvc.Service
	PreKeys  *prekeysvc.Publisher
	Sessions *sessionsvc.Service
	Relay    *relay.Client
	Log      zerolog.Logger

	// Messages is nil when cfg names no user.
	Messages *messagesvc.Service
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config, log zerolog.Logger) (*Wire, error) {
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, err
	}

	km := keys.New(store.NewKeyFileStore(cfg.Home, cfg.Passphrase), keys.WithPolicy(cfg.Keys))
	sessions := sessionsvc.New(km, store.NewSessionFileStore(cfg.Home),
		sessionsvc.WithRatchetConfig(cfg.Ratchet),
		sessionsvc.WithLogger(log.With().Str("component", "session").Logger()),
	)
	rc := relay.NewClient(cfg.DirectoryURL)

	w := &Wire{
		Keys:     km,
		Identity: identitysvc.New(km, cfg.Passphrase),
		PreKeys:  prekeysvc.New(km, prekeysvc.WithLogger(log.With().Str("component", "prekey").Logger())),
		Sessions: sessions,
		Relay:    rc,
		Log:      log,
	}
	if self, err := cfg.Address(); err == nil {
		w.Messages = messagesvc.New(self, sessions, rc,
			messagesvc.WithLogger(log.With().Str("component", "message").Logger()),
		)
	}
	return w, nil
}
