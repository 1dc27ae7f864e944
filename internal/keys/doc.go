// Package keys owns the local key material: the identity, the signed
// pre-keys and the one-time pre-keys.
//
// A Manager is constructed explicitly over a domain.KeyStore, a clock and an
// entropy source. There is no package-level key state.
package keys
