package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"paircrypt/internal/domain"
	"paircrypt/internal/wire"
)

// DefaultBatchSize is how many mailbox items one ReceiveMessages call handles.
const DefaultBatchSize = 50

// Service sends and receives messages for one local address.
type Service struct {
	self     domain.Address
	sessions domain.SessionService
	relay    domain.RelayClient
	log      zerolog.Logger

	batch    int
	attempts int
	minWait  time.Duration
	maxWait  time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

// WithBatchSize bounds how many items are fetched per ReceiveMessages call.
func WithBatchSize(n int) Option { return func(s *Service) { s.batch = n } }

// WithRetry sets how often a storage failure is attempted and the backoff
// bounds between attempts.
func WithRetry(attempts int, minWait, maxWait time.Duration) Option {
	return func(s *Service) {
		s.attempts, s.minWait, s.maxWait = attempts, minWait, maxWait
	}
}

// New returns a Service sending as self.
func New(self domain.Address, sessions domain.SessionService, relay domain.RelayClient, opts ...Option) *Service {
	s := &Service{
		self:     self,
		sessions: sessions,
		relay:    relay,
		log:      zerolog.Nop(),
		batch:    DefaultBatchSize,
		attempts: 4,
		minWait:  50 * time.Millisecond,
		maxWait:  2 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SendMessage encrypts plaintext for to and posts it. A session is started
// from to's published bundle when none is live.
func (s *Service) SendMessage(ctx context.Context, to domain.Address, plaintext []byte) error {
	h, ok, err := s.handle(ctx, to)
	if err != nil {
		return err
	}
	if !ok {
		bundle, err := s.relay.FetchBundle(ctx, to)
		if err != nil {
			return fmt.Errorf("fetch bundle for %s: %w", to, err)
		}
		err = s.retry(ctx, func() error {
			h, err = s.sessions.BeginSession(to, bundle)
			return err
		})
		if err != nil {
			return fmt.Errorf("begin session with %s: %w", to, err)
		}
	}

	var env domain.Envelope
	err = s.retry(ctx, func() error {
		env, err = s.sessions.Encrypt(h, plaintext)
		return err
	})
	if err != nil {
		return fmt.Errorf("encrypt for %s: %w", to, err)
	}
	b, err := wire.Encode(env)
	if err != nil {
		return err
	}
	return s.relay.SendMessage(ctx, s.self, to, b)
}

// ReceiveMessages fetches one batch from the mailbox and decrypts it in
// order. Items are acknowledged up to the first one that could not be
// handled because of a storage failure; those and later items stay queued.
func (s *Service) ReceiveMessages(ctx context.Context) ([]domain.DecryptedMessage, error) {
	items, err := s.relay.FetchMessages(ctx, s.self, s.batch)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DecryptedMessage, 0, len(items))
	processed := 0

	var stop error
	for _, item := range items {
		pt, err := s.receive(ctx, item)
		if err != nil && (domain.Retriable(err) || ctx.Err() != nil) {
			stop = fmt.Errorf("message from %s: %w", item.From, err)
			break
		}
		processed++
		if err != nil {
			s.log.Warn().Err(err).Str("peer", item.From.String()).Msg("dropping message")
			continue
		}
		out = append(out, domain.DecryptedMessage{
			From:      item.From,
			Plaintext: pt,
			Timestamp: item.Timestamp,
		})
	}

	if processed > 0 {
		if err := s.relay.AckMessages(ctx, s.self, processed); err != nil {
			return out, fmt.Errorf("ack %d messages: %w", processed, err)
		}
	}
	return out, stop
}

func (s *Service) receive(ctx context.Context, item domain.MailboxItem) ([]byte, error) {
	env, err := wire.Decode(item.Envelope)
	if err != nil {
		return nil, err
	}

	var h domain.SessionHandle
	if _, initial := env.(*domain.InitialHandshakeEnvelope); initial {
		err = s.retry(ctx, func() error {
			h, err = s.sessions.AcceptSession(item.From, env)
			return err
		})
		if err != nil {
			return nil, err
		}
	} else {
		var ok bool
		h, ok, err = s.handle(ctx, item.From)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.Decryption(domain.ErrSessionNotFound)
		}
	}

	var pt []byte
	err = s.retry(ctx, func() error {
		pt, err = s.sessions.Decrypt(h, env)
		return err
	})
	return pt, err
}

func (s *Service) handle(ctx context.Context, peer domain.Address) (h domain.SessionHandle, ok bool, err error) {
	err = s.retry(ctx, func() error {
		h, ok, err = s.sessions.Handle(peer)
		return err
	})
	return h, ok, err
}

// retry runs op until it succeeds, fails with a non-retriable error, or the
// attempts are used up.
func (s *Service) retry(ctx context.Context, op func() error) error {
	b := &backoff.Backoff{Min: s.minWait, Max: s.maxWait, Factor: 2, Jitter: true}
	for {
		err := op()
		if err == nil || !domain.Retriable(err) || int(b.Attempt())+1 >= s.attempts {
			return err
		}
		wait := b.Duration()
		s.log.Debug().Err(err).Dur("wait", wait).Msg("retrying after storage failure")
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}
	}
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)
