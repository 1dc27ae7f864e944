// Package session is the core entry point: it establishes sessions with
// X3DH and encrypts and decrypts with the Double Ratchet.
//
// Every operation loads the peer's state, mutates it and saves it back while
// holding that peer's lock, so operations on one peer device are serialised
// and operations on different devices run in parallel.
package session
