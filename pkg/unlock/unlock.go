// Package unlock drives one retrieval operation as an explicit state
// machine: fetch by fingerprint, decrypt with the bare code, fall back
// to a password prompt, reveal, and optionally burn on read.
//
// A Session is single-use. It owns every timer it schedules and tears
// all of them down on Close, so a superseded or abandoned lookup can
// never fire a deletion against a record it no longer represents.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sealdrop/sealdrop/pkg/crypt"
	"github.com/sealdrop/sealdrop/pkg/pack"
	"github.com/sealdrop/sealdrop/pkg/sharecode"
)

var (
	// ErrNotFound covers both an unregistered fingerprint and an
	// unreachable record store; the two are deliberately
	// indistinguishable to the caller.
	ErrNotFound = errors.New("unlock: code not found")

	// ErrExpired indicates the record existed but its expiry timestamp
	// has passed.
	ErrExpired = errors.New("unlock: record expired")

	// ErrIncorrectSecret is set after a password attempt fails. The
	// first code-only failure is not an error; it is the signal that a
	// password is required.
	ErrIncorrectSecret = errors.New("unlock: incorrect code or password")

	// ErrDecryptFailed indicates the envelope authenticated but the
	// package inside it could not be parsed, or the envelope was
	// structurally invalid. Points at a corrupted upload.
	ErrDecryptFailed = errors.New("unlock: could not decrypt package")

	// ErrBadTransition is returned when an operation is invoked in a
	// state it is not valid in.
	ErrBadTransition = errors.New("unlock: operation not valid in current state")
)

// Record is the server-visible metadata of one share, as returned by
// the record store.
type Record struct {
	ID          string
	Fingerprint sharecode.Fingerprint
	Path        string
	Kind        pack.ContentKind
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Backend is the external store surface a session needs: record lookup
// by fingerprint, ciphertext fetch, and the burn deletion.
type Backend interface {
	// FindRecord returns ErrNotFound or ErrExpired (possibly wrapped)
	// for the corresponding outcomes.
	FindRecord(ctx context.Context, fp sharecode.Fingerprint) (Record, error)
	FetchEnvelope(ctx context.Context, rec Record) ([]byte, error)
	DeleteRecord(ctx context.Context, id string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const deleteTimeout = 10 * time.Second

// Session is the state machine for a single retrieval. All methods are
// safe for concurrent use with the timers the session schedules.
type Session struct {
	mu sync.Mutex

	backend Backend
	log     *slog.Logger
	clock   Clock
	// afterFunc is time.AfterFunc unless a test replaces it.
	afterFunc func(d time.Duration, f func()) *time.Timer
	// notify, if set, observes every state transition.
	notify func(State)

	state   State
	code    string // normalized
	rec     Record
	envelope []byte
	pkg     *pack.Package
	lastErr error

	burnTimer   *time.Timer
	expiryTimer *time.Timer
	burnFired   bool
	closed      bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for fire-and-forget burn reporting.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithClock overrides the session's time source.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithStateHook registers an observer invoked on every transition,
// including the timer-driven ones.
func WithStateHook(fn func(State)) Option {
	return func(s *Session) { s.notify = fn }
}

// NewSession creates an idle session bound to a backend.
func NewSession(backend Backend, opts ...Option) *Session {
	s := &Session{
		backend:   backend,
		log:       slog.Default(),
		clock:     realClock{},
		afterFunc: time.AfterFunc,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastErr returns the error annotation of the current state, if any.
func (s *Session) LastErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Record returns the fetched record. Valid once the session has left
// Searching via Found.
func (s *Session) Record() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec.ID == "" {
		return Record{}, false
	}
	return s.rec, true
}

// Package returns the decrypted package while the session holds one.
// After expiry, burn or Close the package is discarded.
func (s *Session) Package() (pack.Package, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pkg == nil {
		return pack.Package{}, false
	}
	return *s.pkg, true
}

// set transitions to st while holding mu.
func (s *Session) set(st State) {
	s.state = st
	if s.notify != nil {
		s.notify(st)
	}
}

// Begin runs the search and the first, code-only decrypt attempt. It
// returns the resulting state: NotFound, Expired, Failed, Unlocked or
// PasswordRequired. An authentication failure here is not an error; it
// means the drop needs a password.
func (s *Session) Begin(ctx context.Context, rawCode string) (State, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.state, ErrBadTransition
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return s.state, fmt.Errorf("%w: Begin in %s", ErrBadTransition, s.state)
	}
	s.code = sharecode.Normalize(rawCode)
	s.set(StateSearching)
	code := s.code
	s.mu.Unlock()

	rec, err := s.backend.FindRecord(ctx, sharecode.FingerprintOf(code))
	if err != nil {
		return s.searchFailed(err)
	}
	if !rec.ExpiresAt.IsZero() && !s.clock.Now().Before(rec.ExpiresAt) {
		return s.searchFailed(ErrExpired)
	}

	envelope, err := s.backend.FetchEnvelope(ctx, rec)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.lastErr = fmt.Errorf("fetch envelope: %w", err)
		s.set(StateFailed)
		return s.state, s.lastErr
	}

	s.mu.Lock()
	if s.closed || s.state != StateSearching {
		st := s.state
		s.mu.Unlock()
		return st, nil
	}
	s.rec = rec
	s.envelope = envelope
	s.set(StateFound)
	s.startExpiryWatch()
	s.set(StateDecryptingCodeOnly)
	s.mu.Unlock()

	return s.attempt(s.code, StatePasswordRequired, nil)
}

func (s *Session) searchFailed(err error) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != StateSearching {
		return s.state, nil
	}
	switch {
	case errors.Is(err, ErrExpired):
		s.set(StateExpired)
		return s.state, ErrExpired
	case errors.Is(err, ErrNotFound):
		s.set(StateNotFound)
		return s.state, ErrNotFound
	default:
		// Store unreachable: surfaced identically to not-found, but the
		// underlying cause is preserved for the caller.
		s.lastErr = err
		s.set(StateNotFound)
		return s.state, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
}

// SubmitPassword retries decryption with the key derived from
// code‖password. Only valid in PasswordRequired. There is no attempt
// limit; a failed attempt re-enters PasswordRequired with
// ErrIncorrectSecret annotated.
func (s *Session) SubmitPassword(ctx context.Context, password string) (State, error) {
	s.mu.Lock()
	if s.closed || s.state != StatePasswordRequired {
		st := s.state
		s.mu.Unlock()
		return st, fmt.Errorf("%w: SubmitPassword in %s", ErrBadTransition, st)
	}
	s.set(StateDecryptingWithPassword)
	secret := s.code + password
	s.mu.Unlock()

	return s.attempt(secret, StatePasswordRequired, ErrIncorrectSecret)
}

// attempt decrypts the cached envelope with the key derived from
// secret. On authentication failure it moves to onAuthFail with authErr
// annotated (nil for the silent first attempt).
func (s *Session) attempt(secret string, onAuthFail State, authErr error) (State, error) {
	key := crypt.DeriveKey(secret)

	s.mu.Lock()
	envelope := s.envelope
	s.mu.Unlock()

	plaintext, err := crypt.Decrypt(key, envelope)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (s.state != StateDecryptingCodeOnly && s.state != StateDecryptingWithPassword) {
		// Superseded by expiry or teardown while decrypting.
		return s.state, nil
	}

	switch {
	case err == nil:
	case errors.Is(err, crypt.ErrAuthentication):
		s.lastErr = authErr
		s.set(onAuthFail)
		return s.state, authErr
	default:
		s.lastErr = fmt.Errorf("%w: %v", ErrDecryptFailed, err)
		s.set(StateFailed)
		return s.state, s.lastErr
	}

	p, err := pack.Deserialize(plaintext)
	if err != nil {
		// Authenticated but unparsable: corrupted upload, not retried.
		s.lastErr = fmt.Errorf("%w: %v", ErrDecryptFailed, err)
		s.set(StateFailed)
		return s.state, s.lastErr
	}

	s.pkg = &p
	s.lastErr = nil
	s.set(StateUnlocked)
	return s.state, nil
}

// Reveal marks the package as shown to the user. If the package asks
// for burn-on-read, the burn countdown starts now.
func (s *Session) Reveal() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != StateUnlocked {
		return s.state, fmt.Errorf("%w: Reveal in %s", ErrBadTransition, s.state)
	}

	s.set(StateRevealed)
	if s.pkg.Options.BurnOnRead {
		s.set(StateBurnScheduled)
		s.burnTimer = s.afterFunc(s.pkg.Options.BurnDelay, s.burn)
	}
	return s.state, nil
}

// burn runs when the burn countdown fires. The deletion is
// fire-and-forget: the content has already been shown, so a failed
// delete is logged and the state advances regardless.
func (s *Session) burn() {
	s.mu.Lock()
	if s.closed || s.burnFired || s.state != StateBurnScheduled {
		s.mu.Unlock()
		return
	}
	s.burnFired = true
	s.set(StateBurning)
	rec := s.rec
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()
	if err := s.backend.DeleteRecord(ctx, rec.ID); err != nil {
		s.log.Error("burn delete failed", "record", rec.ID, "error", err)
	} else {
		s.log.Info("record burnt", "record", rec.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pkg = nil
	s.set(StateBurnt)
}

// startExpiryWatch arms the TTL countdown. Must be called with mu held
// and a record present.
func (s *Session) startExpiryWatch() {
	if s.rec.ExpiresAt.IsZero() {
		return
	}
	remaining := s.rec.ExpiresAt.Sub(s.clock.Now())
	s.expiryTimer = s.afterFunc(remaining, s.forceExpire)
}

// forceExpire cuts over to Expired from any state when the record's
// lifetime ends, discarding the in-memory package.
func (s *Session) forceExpire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state == StateExpired || s.state == StateBurnt {
		return
	}
	if s.burnTimer != nil {
		s.burnTimer.Stop()
	}
	s.pkg = nil
	s.envelope = nil
	s.lastErr = nil
	s.set(StateExpired)
}

// Close tears the session down: both timers are cancelled, any pending
// burn deletion is invalidated, and decrypted state is discarded. A
// closed session accepts no further operations.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.burnTimer != nil {
		s.burnTimer.Stop()
	}
	if s.expiryTimer != nil {
		s.expiryTimer.Stop()
	}
	s.pkg = nil
	s.envelope = nil
}
