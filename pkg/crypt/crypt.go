// Package crypt implements the symmetric encryption envelope for share
// packages: key derivation from a secret string and authenticated
// encryption with a per-call random nonce.
//
// The key is derived as a single unsalted SHA-256 of the secret. There is
// deliberately no salt and no stretching: the key must be re-derivable
// from the share code alone, with no stored parameter, on both the
// uploading and the retrieving side. Key strength is therefore bounded by
// the entropy of the code (plus password, if any).
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
)

// NonceSize is the fixed nonce length prefixed to every envelope.
const NonceSize = 12

var (
	// ErrAuthentication indicates the envelope failed to authenticate
	// under the given key. A wrong key and tampered ciphertext are
	// indistinguishable, and callers must not try to tell them apart.
	ErrAuthentication = errors.New("crypt: message authentication failed")

	// ErrMalformedEnvelope indicates the buffer is structurally invalid,
	// too short to even contain a nonce.
	ErrMalformedEnvelope = errors.New("crypt: envelope too short")
)

// Key is a 256-bit AES key derived from a secret string.
type Key [sha256.Size]byte

// DeriveKey turns a UTF-8 secret string into a Key. The same input
// always yields the same key; the key is never stored or transmitted.
func DeriveKey(secret string) Key {
	return Key(sha256.Sum256([]byte(secret)))
}

// Encrypt seals plaintext under key with AES-256-GCM and a fresh random
// nonce. The returned buffer is nonce || ciphertext+tag; this layout is
// the wire contract external storage persists verbatim.
func Encrypt(key Key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt splits the envelope at the fixed nonce length and attempts
// authenticated decryption. It returns ErrMalformedEnvelope for buffers
// too short to hold a nonce and ErrAuthentication when the ciphertext
// fails to authenticate under key.
func Decrypt(key Key, envelope []byte) ([]byte, error) {
	if len(envelope) < NonceSize {
		return nil, ErrMalformedEnvelope
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, envelope[:NonceSize], envelope[NonceSize:], nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func newAEAD(key Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return aead, nil
}
