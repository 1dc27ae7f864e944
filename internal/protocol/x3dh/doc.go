// Package x3dh implements the X3DH key agreement used to bootstrap a Double
// Ratchet session between two parties.
//
// # Overview
//
// X3DH lets an initiator derive a shared root key and chain key with a
// responder who has published a key bundle. The bundle contains:
//   - Identity key (X25519) and signing key (Ed25519)
//   - Signed pre-key (X25519) with its creation time and signature
//   - Optionally one one-time pre-key (X25519)
//
// # Flows
//
// Initiator:
//  1. The caller validates the bundle (see services/prekey.ValidateBundle).
//  2. Generate an ephemeral X25519 key pair.
//  3. Compute DH values (IKa·SPKb, EKa·IKb, EKa·SPKb[, EKa·OPKb]).
//  4. HKDF over F || DH1 || DH2 || DH3 [|| DH4] to 64 bytes: root key, chain key.
//  5. Return the keys and the HandshakeHeader to attach to the first message.
//
// Responder:
//  1. Receive the HandshakeHeader (initiator IK, ephemeral EK, SPK id[, OPK id]).
//  2. Look up the SPK and the OPK private keys.
//  3. Compute the mirrored DH set (SPKb·IKa, IKb·EKa, SPKb·EKa[, OPKb·EKa]).
//  4. HKDF the same transcript to the identical keys.
//
// # Errors
//
// Every error wraps domain.ErrHandshakeFailure.
//
// # Security notes
//
// Only public material is sent over the wire. One-time pre-keys, when
// present, add a DH whose private half is deleted after first use. Without
// one the handshake still succeeds with three DH values.
package x3dh
