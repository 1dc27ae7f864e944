package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Address identifies one device of a peer. Ratchet state is kept per Address.
type Address struct {
	Name     string `json:"name" cbor:"1,keyasint"`
	DeviceID uint32 `json:"device_id" cbor:"2,keyasint"`
}

// DefaultDeviceID is used when an address is written without a device suffix.
const DefaultDeviceID uint32 = 1

// String returns the address as "name.device".
func (a Address) String() string { return a.Name + "." + strconv.FormatUint(uint64(a.DeviceID), 10) }

// ParseAddress parses "name" or "name.device".
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return Address{Name: s, DeviceID: DefaultDeviceID}, nil
	}
	dev, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil || i == 0 {
		return Address{}, fmt.Errorf("invalid address %q", s)
	}
	return Address{Name: s[:i], DeviceID: uint32(dev)}, nil
}

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// SignedPreKeyID uniquely identifies a signed pre-key.
type SignedPreKeyID uint32

// OneTimePreKeyID uniquely identifies a one-time pre-key.
type OneTimePreKeyID uint32
