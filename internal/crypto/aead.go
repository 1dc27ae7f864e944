package crypto

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrOpen is returned when a ciphertext fails authentication.
var ErrOpen = errors.New("crypto: message authentication failed")

// Seal encrypts plaintext under a single-use message key. The nonce is the
// message counter, which is unique per key.
func Seal(key []byte, counter uint32, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce(counter), plaintext, ad), nil
}

// Open authenticates and decrypts ciphertext produced by Seal.
func Open(key []byte, counter uint32, ciphertext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce(counter), ciphertext, ad)
	if err != nil {
		return nil, ErrOpen
	}
	return pt, nil
}

func nonce(counter uint32) []byte {
	n := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint32(n[chacha20poly1305.NonceSize-4:], counter)
	return n
}
