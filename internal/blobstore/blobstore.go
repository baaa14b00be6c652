// Package blobstore stores encrypted envelopes as opaque files. Object
// names are derived from the code fingerprint plus a timestamp, never
// from the raw code, so nothing downstream of the client ever observes
// the code value. Reads can be handed out as HMAC-signed, time-limited
// URLs for the HTTP surface.
package blobstore

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"

	"github.com/sealdrop/sealdrop/pkg/sharecode"
)

var (
	// ErrNotFound indicates no object exists under the name.
	ErrNotFound = errors.New("blobstore: object not found")

	// ErrInvalidName indicates the object name is not one this store
	// could have produced.
	ErrInvalidName = errors.New("blobstore: invalid object name")

	// ErrNotEnoughSpace refuses a write because the backing volume is
	// below the configured free-space floor. This is an operator issue,
	// not a data issue, and carries actionable detail.
	ErrNotEnoughSpace = errors.New("blobstore: not enough free space")

	// ErrBadSignature indicates a read URL whose signature or expiry
	// does not verify.
	ErrBadSignature = errors.New("blobstore: invalid or expired signature")
)

// Object names are fingerprint hex plus a nanosecond timestamp.
var namePattern = regexp.MustCompile(`^[a-f0-9]{64}-\d+$`)

// Config configures the store.
type Config struct {
	// Path is the directory envelopes are stored under.
	Path string
	// MinimumFreeGB refuses writes when the volume has less free space.
	// Zero disables the check.
	MinimumFreeGB uint
	// Logger is optional; a default logrus logger is used when nil.
	Logger *logrus.Logger
}

// Store is a filesystem envelope store.
type Store struct {
	root    string
	minFree uint64
	signKey []byte
	log     *logrus.Logger
}

// Open creates the store directory if needed and draws a fresh URL
// signing key. Signed URLs do not survive a restart by design; records
// hand out new ones per fetch.
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}

	signKey := make([]byte, 32)
	if _, err := rand.Read(signKey); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}

	return &Store{
		root:    cfg.Path,
		minFree: uint64(cfg.MinimumFreeGB) * (1 << 30),
		signKey: signKey,
		log:     cfg.Logger,
	}, nil
}

// ObjectName derives the storage name for an upload from the code
// fingerprint and the upload time.
func ObjectName(fp sharecode.Fingerprint, now time.Time) string {
	return fp.Hex() + "-" + strconv.FormatInt(now.UnixNano(), 10)
}

// safePath validates the name and confines it to the store root.
func (s *Store) safePath(name string) (string, error) {
	if !namePattern.MatchString(name) {
		return "", ErrInvalidName
	}

	clean := filepath.Clean(filepath.Join(s.root, name))

	absRoot, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(clean)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absPath, absRoot) {
		return "", ErrInvalidName
	}

	return clean, nil
}

// Put stores an envelope verbatim. The content is opaque to this layer;
// no type information is recorded alongside it.
func (s *Store) Put(name string, envelope []byte) error {
	path, err := s.safePath(name)
	if err != nil {
		return err
	}

	if err := s.checkFreeSpace(); err != nil {
		return err
	}

	if err := os.WriteFile(path, envelope, 0o600); err != nil {
		return fmt.Errorf("write object: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"object": name,
		"bytes":  len(envelope),
	}).Debug("object stored")
	return nil
}

// Get reads an envelope back.
func (s *Store) Get(name string) ([]byte, error) {
	path, err := s.safePath(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Delete removes an envelope. Deleting a missing object is not an
// error.
func (s *Store) Delete(name string) error {
	path, err := s.safePath(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (s *Store) checkFreeSpace() error {
	if s.minFree == 0 {
		return nil
	}

	usage, err := disk.Usage(s.root)
	if err != nil {
		return fmt.Errorf("check free space: %w", err)
	}
	if usage.Free < s.minFree {
		return fmt.Errorf(
			"%w: %d MB free on %s, %d MB required",
			ErrNotEnoughSpace,
			usage.Free/(1<<20), s.root, s.minFree/(1<<20),
		)
	}
	return nil
}

// SignedURL returns a relative time-limited read URL of the form
// /blobs/<name>?exp=<unix>&sig=<hex>.
func (s *Store) SignedURL(name string, ttl time.Duration) (string, error) {
	if _, err := s.safePath(name); err != nil {
		return "", err
	}

	exp := time.Now().Add(ttl).Unix()
	sig := s.sign(name, exp)
	return fmt.Sprintf("/blobs/%s?exp=%d&sig=%s", url.PathEscape(name), exp, sig), nil
}

// VerifySignedQuery checks the exp/sig pair handed out by SignedURL.
func (s *Store) VerifySignedQuery(name, expStr, sig string) error {
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if time.Now().Unix() > exp {
		return ErrBadSignature
	}

	expected := s.sign(name, exp)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}

func (s *Store) sign(name string, exp int64) string {
	mac := hmac.New(sha256.New, s.signKey)
	fmt.Fprintf(mac, "%s|%d", name, exp)
	return hex.EncodeToString(mac.Sum(nil))
}
