package keys

import "time"

// Policy controls rotation and replenishment of pre-keys.
type Policy struct {
	// RotationInterval is how long a signed pre-key stays current.
	RotationInterval time.Duration
	// GraceWindow is how long a superseded signed pre-key is still honoured
	// for in-flight handshakes.
	GraceWindow time.Duration
	// OneTimeBatch is how many one-time pre-keys a replenishment creates.
	OneTimeBatch int
	// LowWater triggers replenishment when fewer keys are available.
	LowWater int
}

// DefaultPolicy rotates weekly with a two day grace window.
func DefaultPolicy() Policy {
	return Policy{
		RotationInterval: 7 * 24 * time.Hour,
		GraceWindow:      48 * time.Hour,
		OneTimeBatch:     100,
		LowWater:         10,
	}
}

// SignedPreKeyLifetime is the longest a signed pre-key may be relied upon
// after its creation.
func (p Policy) SignedPreKeyLifetime() time.Duration { return p.RotationInterval + p.GraceWindow }
