// Package memzero wipes sensitive buffers.
package memzero

import "github.com/awnumar/memguard"

// Zero overwrites b with zeros.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	memguard.WipeBytes(b)
}
