// Package ratchet implements the Double Ratchet over a domain.RatchetState.
//
// A Ratchet holds only configuration (skip limit, skipped-key cache bounds,
// clock and entropy); all session data lives in the state value, so one
// Ratchet serves every peer. Message counters start at 1. Skipped message keys
// go to the bounded cache in package skipcache.
//
// Decrypt works on a copy of the state and commits it only after the message
// authenticates, so a rejected message never changes the session. Counters
// already used on the current or a recently retired chain are reported as
// replays; counters whose cached key was evicted are reported as such.
//
// Concurrency: RatchetState is NOT safe for concurrent use. Callers must
// serialise access per peer.
package ratchet
