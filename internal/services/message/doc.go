// Package message sends and receives encrypted messages through the relay.
//
// Sending starts a session from the peer's published bundle when none is
// live, encrypts under it, encodes the envelope with package wire and posts
// it. Receiving fetches a batch from the mailbox, completes handshakes for
// initial envelopes, decrypts in order and acknowledges what it handled.
//
// Storage failures are retried with exponential backoff. Envelopes that fail
// authentication or decoding are dropped with a warning so one bad item
// cannot wedge a mailbox.
package message
