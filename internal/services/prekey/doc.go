// Package prekey publishes and validates key bundles.
//
// Publisher assembles the local bundle from the key manager, rotating the
// signed pre-key and replenishing one-time pre-keys first when policy says
// so. ValidateBundle is the consumer side: it checks a peer's bundle before a
// handshake is run against it.
package prekey
