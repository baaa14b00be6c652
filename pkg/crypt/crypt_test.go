package crypt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	a := DeriveKey("K7MRP2XWhunter2")
	b := DeriveKey("K7MRP2XWhunter2")
	assert.Equal(t, a, b)
}

func TestDeriveKey_DifferentSecretsDiverge(t *testing.T) {
	assert.NotEqual(t, DeriveKey("K7MRP2XW"), DeriveKey("K7MRP2XX"))
	assert.NotEqual(t, DeriveKey("K7MRP2XW"), DeriveKey("K7MRP2XWp"))
	assert.NotEqual(t, DeriveKey(""), DeriveKey(" "))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		secret := rapid.String().Draw(t, "secret")
		plaintext := rapid.SliceOf(rapid.Byte()).Draw(t, "plaintext")

		key := DeriveKey(secret)
		envelope, err := Encrypt(key, plaintext)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}

		got, err := Decrypt(key, envelope)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if !bytes.Equal(plaintext, got) {
			t.Fatalf("round trip mismatch: %q != %q", plaintext, got)
		}
	})
}

func TestDecrypt_WrongKey(t *testing.T) {
	envelope, err := Encrypt(DeriveKey("right"), []byte("payload"))
	require.NoError(t, err)

	_, err = Decrypt(DeriveKey("wrong"), envelope)
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	key := DeriveKey("secret")
	envelope, err := Encrypt(key, []byte("payload under test"))
	require.NoError(t, err)

	// Flip one bit in every position; no position may slip through.
	for i := range envelope {
		tampered := make([]byte, len(envelope))
		copy(tampered, envelope)
		tampered[i] ^= 0x01

		_, err := Decrypt(key, tampered)
		assert.ErrorIs(t, err, ErrAuthentication, "bit flip at offset %d accepted", i)
	}
}

func TestDecrypt_TooShort(t *testing.T) {
	key := DeriveKey("secret")
	for _, envelope := range [][]byte{nil, {}, {1, 2, 3}, make([]byte, NonceSize-1)} {
		_, err := Decrypt(key, envelope)
		assert.ErrorIs(t, err, ErrMalformedEnvelope, "length %d", len(envelope))
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	key := DeriveKey("secret")
	plaintext := []byte("same input every time")

	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		envelope, err := Encrypt(key, plaintext)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(envelope), NonceSize)

		nonce := string(envelope[:NonceSize])
		if _, dup := seen[nonce]; dup {
			t.Fatal("nonce reused across envelopes")
		}
		seen[nonce] = struct{}{}
	}
}

func TestEncrypt_CiphertextsDifferForSamePlaintext(t *testing.T) {
	key := DeriveKey("secret")
	a, err := Encrypt(key, []byte("identical"))
	require.NoError(t, err)
	b, err := Encrypt(key, []byte("identical"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
