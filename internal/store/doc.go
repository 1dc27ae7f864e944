// Package store provides file-based and in-memory persistence for paircrypt.
//
// It contains concrete implementations of the domain storage interfaces. All
// methods are concurrency-safe via internal locking. Files are written to a
// temporary name and renamed into place, so a crash never leaves a torn
// record behind. Failures of the underlying medium are reported wrapped in
// domain.ErrStorageFailure.
//
// The package includes stores for:
//   - Identity keys, encrypted under a passphrase (IdentityFileStore)
//   - Signed and one-time pre-keys (PreKeyFileStore)
//   - Both of the above behind domain.KeyStore (KeyFileStore, KeyMemStore)
//   - Double Ratchet session state, CBOR per peer device (SessionFileStore,
//     SessionMemStore)
package store
