package sharecode

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint is the one-way digest of a normalized share code. It is
// the only identifier the storage backend ever sees; the mapping back
// to the code is not invertible.
type Fingerprint [sha256.Size]byte

// FingerprintOf computes the fingerprint of a code. The input is
// normalized first, so any grouping or casing of the same code yields
// the same fingerprint.
func FingerprintOf(code string) Fingerprint {
	return Fingerprint(sha256.Sum256([]byte(Normalize(code))))
}

// ParseFingerprint parses the 64-character hex form of a fingerprint.
func ParseFingerprint(s string) (Fingerprint, error) {
	if len(s) != sha256.Size*2 {
		return Fingerprint{}, fmt.Errorf(
			"invalid fingerprint length: expected %d, got %d",
			sha256.Size*2, len(s),
		)
	}

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("decode fingerprint: %w", err)
	}

	var fp Fingerprint
	copy(fp[:], decoded)
	return fp, nil
}

// Hex returns the hexadecimal string representation of the fingerprint.
func (fp Fingerprint) Hex() string {
	return hex.EncodeToString(fp[:])
}

func (fp Fingerprint) String() string {
	return fp.Hex()
}

// Bytes returns a byte slice copy of the fingerprint.
func (fp Fingerprint) Bytes() []byte {
	b := make([]byte, len(fp))
	copy(b, fp[:])
	return b
}

// IsZero reports whether the fingerprint is the zero value.
func (fp Fingerprint) IsZero() bool {
	return fp == Fingerprint{}
}
