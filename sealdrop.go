// Package sealdrop shares files, notes and recordings through short
// human-readable codes while keeping the storage backend unable to read
// content or index by the real code. All cryptography happens on the
// client side of the store boundary: the code (optionally combined with
// a password) derives the key, the content travels only as an
// authenticated encrypted envelope, and the backend indexes nothing but
// a one-way fingerprint of the code.
package sealdrop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sealdrop/sealdrop/internal/blobstore"
	"github.com/sealdrop/sealdrop/internal/httpapi"
	"github.com/sealdrop/sealdrop/internal/recordstore"
	"github.com/sealdrop/sealdrop/pkg/crypt"
	"github.com/sealdrop/sealdrop/pkg/locator"
	"github.com/sealdrop/sealdrop/pkg/pack"
	"github.com/sealdrop/sealdrop/pkg/sharecode"
	"github.com/sealdrop/sealdrop/pkg/unlock"
)

var (
	ErrNotStarted = errors.New("sealdrop: not started")
	ErrClosed     = errors.New("sealdrop: closed")

	// ErrUploadFailed wraps storage-side upload errors. These are
	// operator or configuration issues and carry actionable detail.
	ErrUploadFailed = errors.New("sealdrop: upload failed")
)

const (
	defaultTTL      = 24 * time.Hour
	sweepInterval   = 15 * time.Minute
	shutdownTimeout = 5 * time.Second
)

// Sealdrop is the main handle. It owns the record table, the blob
// store, and optionally the backend HTTP API.
type Sealdrop struct {
	log    *slog.Logger
	config Config

	storeMu sync.RWMutex
	records *recordstore.Store
	blobs   *blobstore.Store
	httpSrv *http.Server

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// Receipt describes a completed upload.
type Receipt struct {
	Code        sharecode.Code
	Fingerprint sharecode.Fingerprint
	RecordID    string
	Locator     string
	ExpiresAt   time.Time
}

// New constructs a handle. No I/O happens until Start.
func New(conf Config) (*Sealdrop, error) {
	if len(conf.Paths) == 0 {
		return nil, fmt.Errorf("at least one path must be provided in config")
	}
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}
	return &Sealdrop{
		log:    conf.Logger,
		config: conf,
	}, nil
}

// Start opens the stores under Paths[0] and, when configured, serves
// the backend API. Only the first call has effect.
func (sd *Sealdrop) Start(ctx context.Context) error {
	var startErr error
	sd.startOnce.Do(func() {
		dataRoot := sd.config.Paths[0]

		records, err := recordstore.Open(recordstore.Config{
			Path: dataRoot + "/records",
		})
		if err != nil {
			startErr = fmt.Errorf("open record store: %w", err)
			return
		}
		records.StartSweeper(sweepInterval)

		blobs, err := blobstore.Open(blobstore.Config{
			Path:          dataRoot + "/blobs",
			MinimumFreeGB: sd.config.MinimumFreeGB,
		})
		if err != nil {
			startErr = fmt.Errorf("open blob store: %w", err)
			_ = records.Close()
			return
		}

		sd.storeMu.Lock()
		sd.records = records
		sd.blobs = blobs
		sd.storeMu.Unlock()

		if sd.config.APIPort != 0 {
			api := httpapi.New(records, blobs, httpapi.WithLogger(sd.log))
			srv := &http.Server{
				Addr:              net.JoinHostPort("", strconv.Itoa(int(sd.config.APIPort))),
				Handler:           api,
				ReadHeaderTimeout: 10 * time.Second,
			}
			sd.httpSrv = srv
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					sd.log.Error("api server stopped", "error", err)
				}
			}()
			sd.log.Info("api listening", "port", sd.config.APIPort)
		}

		sd.started.Store(true)
		sd.log.Info("sealdrop started", "data", dataRoot)
	})
	return startErr
}

// Close shuts the API server and both stores down. Only the first call
// has effect.
func (sd *Sealdrop) Close() error {
	var closeErr error
	sd.closeOnce.Do(func() {
		sd.started.Store(false)

		if sd.httpSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := sd.httpSrv.Shutdown(ctx); err != nil {
				closeErr = errors.Join(closeErr, err)
			}
		}

		sd.storeMu.Lock()
		defer sd.storeMu.Unlock()
		if sd.records != nil {
			closeErr = errors.Join(closeErr, sd.records.Close())
		}
	})
	return closeErr
}

func (sd *Sealdrop) stores() (*recordstore.Store, *blobstore.Store, error) {
	if !sd.started.Load() {
		return nil, nil, ErrNotStarted
	}
	sd.storeMu.RLock()
	defer sd.storeMu.RUnlock()
	return sd.records, sd.blobs, nil
}

// Upload packages, encrypts and stores a payload, returning the share
// code the recipient will use. When password is non-empty, the key is
// derived from code‖password and retrieval will require both.
func (sd *Sealdrop) Upload(ctx context.Context, payload []byte, mimeType, fileName string, opts pack.Options, password string) (Receipt, error) {
	records, blobs, err := sd.stores()
	if err != nil {
		return Receipt{}, err
	}

	if opts.TTL <= 0 {
		opts.TTL = sd.defaultTTL()
	}

	code, err := sharecode.EnsureUnique(ctx, records, sharecode.DefaultMaxAttempts)
	if err != nil {
		return Receipt{}, fmt.Errorf("allocate code: %w", err)
	}

	secret := code.Normalized() + password
	key := crypt.DeriveKey(secret)

	plaintext, err := pack.Serialize(pack.Package{
		Payload:  payload,
		MimeType: mimeType,
		FileName: fileName,
		Options:  opts,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("package payload: %w", err)
	}

	envelope, err := crypt.Encrypt(key, plaintext)
	if err != nil {
		return Receipt{}, fmt.Errorf("encrypt package: %w", err)
	}

	now := time.Now().UTC()
	fp := sharecode.FingerprintOf(string(code))
	objectName := blobstore.ObjectName(fp, now)

	if err := blobs.Put(objectName, envelope); err != nil {
		return Receipt{}, fmt.Errorf("%w: store envelope: %v", ErrUploadFailed, err)
	}

	rec := recordstore.Record{
		ID:        uuid.NewString(),
		Code:      fp.Hex(),
		FilePath:  objectName,
		Type:      pack.KindOf(mimeType).String(),
		MimeType:  "application/octet-stream",
		CreatedAt: now,
		ExpiresAt: now.Add(opts.TTL),
	}
	if err := records.Insert(ctx, rec); err != nil {
		// Roll the orphan blob back; the record is the source of truth.
		if delErr := blobs.Delete(objectName); delErr != nil {
			sd.log.Warn("orphan blob cleanup failed", "object", objectName, "error", delErr)
		}
		return Receipt{}, fmt.Errorf("%w: register record: %v", ErrUploadFailed, err)
	}

	sd.log.Info("upload complete",
		"record", rec.ID,
		"type", rec.Type,
		"expires", rec.ExpiresAt,
	)

	return Receipt{
		Code:        code,
		Fingerprint: fp,
		RecordID:    rec.ID,
		Locator:     locator.Build(sd.config.Origin, string(code)),
		ExpiresAt:   rec.ExpiresAt,
	}, nil
}

// NewSession creates an unlock session running against this instance's
// stores.
func (sd *Sealdrop) NewSession(opts ...unlock.Option) (*unlock.Session, error) {
	if !sd.started.Load() {
		return nil, ErrNotStarted
	}
	opts = append([]unlock.Option{unlock.WithLogger(sd.log)}, opts...)
	return unlock.NewSession(localBackend{sd}, opts...), nil
}

// Stats returns best-effort aggregate counts over the live records.
func (sd *Sealdrop) Stats(ctx context.Context) (recordstore.Stats, error) {
	records, _, err := sd.stores()
	if err != nil {
		return recordstore.Stats{}, err
	}
	return records.Stats(ctx)
}

func (sd *Sealdrop) defaultTTL() time.Duration {
	if sd.config.DefaultTTL > 0 {
		return time.Duration(sd.config.DefaultTTL) * time.Hour
	}
	return defaultTTL
}

// localBackend adapts the embedded stores to the unlock session's
// backend surface.
type localBackend struct {
	sd *Sealdrop
}

func (b localBackend) FindRecord(ctx context.Context, fp sharecode.Fingerprint) (unlock.Record, error) {
	records, _, err := b.sd.stores()
	if err != nil {
		return unlock.Record{}, err
	}

	rec, err := records.GetByFingerprint(ctx, fp)
	switch {
	case errors.Is(err, recordstore.ErrNotFound):
		return unlock.Record{}, unlock.ErrNotFound
	case errors.Is(err, recordstore.ErrExpiredRecord):
		return unlock.Record{}, unlock.ErrExpired
	case err != nil:
		return unlock.Record{}, err
	}

	return unlock.Record{
		ID:          rec.ID,
		Fingerprint: fp,
		Path:        rec.FilePath,
		Kind:        pack.ParseKind(rec.Type),
		CreatedAt:   rec.CreatedAt,
		ExpiresAt:   rec.ExpiresAt,
	}, nil
}

func (b localBackend) FetchEnvelope(ctx context.Context, rec unlock.Record) ([]byte, error) {
	_, blobs, err := b.sd.stores()
	if err != nil {
		return nil, err
	}
	return blobs.Get(rec.Path)
}

func (b localBackend) DeleteRecord(ctx context.Context, id string) error {
	records, blobs, err := b.sd.stores()
	if err != nil {
		return err
	}

	rec, err := recordByID(ctx, records, id)
	if err == nil && rec.FilePath != "" {
		if delErr := blobs.Delete(rec.FilePath); delErr != nil {
			b.sd.log.Warn("blob delete failed", "object", rec.FilePath, "error", delErr)
		}
	}

	if err := records.DeleteByID(ctx, id); err != nil && !errors.Is(err, recordstore.ErrNotFound) {
		return err
	}
	return nil
}

// recordByID resolves a record row for the burn path, so the backing
// blob can be removed alongside the row.
func recordByID(ctx context.Context, records *recordstore.Store, id string) (recordstore.Record, error) {
	return records.GetByID(ctx, id)
}
