// Package crypto exposes the minimal primitives used by paircrypt.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519,
//     DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - HKDF-SHA256 and HMAC-SHA256 derivations (HKDF, HMAC)
//   - ChaCha20-Poly1305 sealing keyed by single-use message keys (Seal, Open)
//   - The signed pre-key transcript that binds key, id and creation time
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// All functions return fixed-size array types defined in internal/domain to
// avoid accidental reallocations. Callers should treat returned secrets as
// sensitive and wipe them with memzero when practical.
package crypto
