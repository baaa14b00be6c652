package blobstore

import (
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealdrop/sealdrop/pkg/sharecode"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := Open(Config{Path: t.TempDir(), Logger: logger})
	require.NoError(t, err)
	return store
}

func testName() string {
	return ObjectName(sharecode.FingerprintOf("ABCD-2345"), time.Now())
}

func TestObjectName_Shape(t *testing.T) {
	name := testName()
	assert.Regexp(t, `^[a-f0-9]{64}-\d+$`, name)
	assert.True(t, strings.HasPrefix(name, sharecode.FingerprintOf("ABCD-2345").Hex()))
}

func TestPutGetDelete(t *testing.T) {
	store := openTestStore(t)
	name := testName()
	envelope := []byte{0x01, 0xff, 0x00, 0x7f}

	require.NoError(t, store.Put(name, envelope))

	got, err := store.Get(name)
	require.NoError(t, err)
	assert.Equal(t, envelope, got)

	require.NoError(t, store.Delete(name))

	_, err = store.Get(name)
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing object stays quiet.
	require.NoError(t, store.Delete(name))
}

func TestInvalidNamesRejected(t *testing.T) {
	store := openTestStore(t)

	names := []string{
		"",
		"plain-name",
		"../../../etc/passwd",
		strings.Repeat("a", 64),                  // no timestamp part
		strings.Repeat("A", 64) + "-123",         // uppercase hex
		strings.Repeat("a", 64) + "-12x",         // non-digit timestamp
		"../" + strings.Repeat("a", 64) + "-123", // traversal prefix
	}
	for _, name := range names {
		assert.ErrorIs(t, store.Put(name, []byte("x")), ErrInvalidName, "name %q", name)
		_, err := store.Get(name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestSignedURL_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	name := testName()
	require.NoError(t, store.Put(name, []byte("envelope")))

	signed, err := store.SignedURL(name, time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed, "/blobs/"))

	u, err := url.Parse(signed)
	require.NoError(t, err)
	q := u.Query()

	require.NoError(t, store.VerifySignedQuery(name, q.Get("exp"), q.Get("sig")))
}

func TestVerifySignedQuery_Rejections(t *testing.T) {
	store := openTestStore(t)
	name := testName()

	signed, err := store.SignedURL(name, time.Minute)
	require.NoError(t, err)
	q, err := url.Parse(signed)
	require.NoError(t, err)
	exp := q.Query().Get("exp")
	sig := q.Query().Get("sig")

	// Tampered signature.
	assert.ErrorIs(t, store.VerifySignedQuery(name, exp, sig+"00"), ErrBadSignature)

	// Signature transplanted onto another object.
	other := ObjectName(sharecode.FingerprintOf("WXYZ-6789"), time.Now())
	assert.ErrorIs(t, store.VerifySignedQuery(other, exp, sig), ErrBadSignature)

	// Garbled expiry.
	assert.ErrorIs(t, store.VerifySignedQuery(name, "not-a-number", sig), ErrBadSignature)
}

func TestSignedURL_Expires(t *testing.T) {
	store := openTestStore(t)
	name := testName()

	signed, err := store.SignedURL(name, -time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)
	q := u.Query()

	assert.ErrorIs(t, store.VerifySignedQuery(name, q.Get("exp"), q.Get("sig")), ErrBadSignature)
}

func TestSignedURL_KeyIsPerStore(t *testing.T) {
	a := openTestStore(t)
	b := openTestStore(t)
	name := testName()

	signed, err := a.SignedURL(name, time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)
	q := u.Query()

	// A signature from one store must not verify against another.
	assert.ErrorIs(t, b.VerifySignedQuery(name, q.Get("exp"), q.Get("sig")), ErrBadSignature)
}

func TestPut_FreeSpaceFloor(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	// An absurd floor no test machine satisfies.
	store, err := Open(Config{
		Path:          t.TempDir(),
		MinimumFreeGB: 1 << 20,
		Logger:        logger,
	})
	require.NoError(t, err)

	err = store.Put(testName(), []byte("x"))
	require.ErrorIs(t, err, ErrNotEnoughSpace)
}
