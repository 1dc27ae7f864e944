// Package wire encodes envelopes for transport.
//
// An envelope is a CBOR map {v, kind, header, ciphertext, handshake?}. Kind 1
// is a steady-state message and kind 2 an initial handshake message, which
// must carry the handshake parameters. Anything else is rejected as
// malformed.
package wire
