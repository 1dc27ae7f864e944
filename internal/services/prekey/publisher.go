package prekey

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"paircrypt/internal/domain"
	"paircrypt/internal/keys"
)

// Publisher builds the public bundle for the local device.
type Publisher struct {
	keys *keys.Manager
	now  func() time.Time
	log  zerolog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(p *Publisher) { p.now = now } }

// WithLogger sets the logger; the default discards.
func WithLogger(l zerolog.Logger) Option { return func(p *Publisher) { p.log = l } }

// New returns a Publisher over km.
func New(km *keys.Manager, opts ...Option) *Publisher {
	p := &Publisher{keys: km, now: time.Now, log: zerolog.Nop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PublishBundle rotates the signed pre-key when it is missing or due,
// replenishes one-time pre-keys below the low-water mark, offers one of them
// and returns the bundle.
func (p *Publisher) PublishBundle() (domain.KeyBundle, error) {
	id, err := p.keys.Identity()
	if err != nil {
		return domain.KeyBundle{}, err
	}
	policy := p.keys.Policy()

	spk, err := p.keys.CurrentSignedPreKey()
	switch {
	case errors.Is(err, domain.ErrKeyNotFound), errors.Is(err, domain.ErrSignedPreKeyExpired):
		spk, err = p.rotate("missing")
	case err != nil:
	case p.now().Sub(spk.CreatedAt) >= policy.RotationInterval:
		spk, err = p.rotate("due")
	}
	if err != nil {
		return domain.KeyBundle{}, err
	}

	avail, err := p.keys.AvailableOneTimePreKeys()
	if err != nil {
		return domain.KeyBundle{}, err
	}
	if avail < policy.LowWater {
		if _, err := p.keys.GenerateOneTimePreKeys(policy.OneTimeBatch); err != nil {
			return domain.KeyBundle{}, err
		}
		p.log.Info().
			Int("available", avail).
			Int("generated", policy.OneTimeBatch).
			Msg("replenished one-time pre-keys")
	}

	b := domain.KeyBundle{
		IdentityKey:           id.XPub,
		SigningKey:            id.EdPub,
		SignedPreKeyID:        spk.ID,
		SignedPreKey:          spk.Pub,
		SignedPreKeyCreatedAt: spk.CreatedAt.Unix(),
		SignedPreKeySignature: append([]byte(nil), spk.Signature...),
	}
	opk, ok, err := p.keys.OfferOneTimePreKey()
	if err != nil {
		return domain.KeyBundle{}, err
	}
	if ok {
		opkID, opkPub := opk.ID, opk.Pub
		b.OneTimePreKeyID = &opkID
		b.OneTimePreKey = &opkPub
	}
	return b, nil
}

func (p *Publisher) rotate(reason string) (domain.SignedPreKeyRecord, error) {
	rec, err := p.keys.RotateSignedPreKey()
	if err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	p.log.Info().
		Uint32("signed_pre_key_id", uint32(rec.ID)).
		Str("reason", reason).
		Msg("rotated signed pre-key")
	return rec, nil
}

// Compile-time assertion that Publisher implements domain.PreKeyService.
var _ domain.PreKeyService = (*Publisher)(nil)
