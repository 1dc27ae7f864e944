// Package identity manages creation and loading of the local identity.
//
// It enforces passphrase policy and generates X25519 and Ed25519 key pairs
// through the key manager, whose store encrypts them at rest.
package identity
