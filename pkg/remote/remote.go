// Package remote is the HTTP client for a sealdrop backend. It
// implements the lookup and retrieval surfaces the protocol packages
// consume, so an uploader or unlock session can run against a remote
// record/object store exactly as it does against the embedded ones.
//
// Blob reads go through the backend's signed-URL flow: the client asks
// for a time-limited URL and then fetches the bytes behind it itself,
// so the store never has to be trusted with anything beyond byte
// transfer.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sealdrop/sealdrop/pkg/pack"
	"github.com/sealdrop/sealdrop/pkg/sharecode"
	"github.com/sealdrop/sealdrop/pkg/unlock"
)

// ErrBackend wraps unexpected backend responses.
var ErrBackend = errors.New("remote: backend error")

// Client talks to one sealdrop backend.
type Client struct {
	base string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a client for the backend at base, e.g.
// "https://drop.example.org/api".
func New(base string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type recordRow struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	FilePath  string    `json:"file_path"`
	Type      string    `json:"type"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Exists implements sharecode.Lookup. An expired-but-unswept row still
// counts as registered.
func (c *Client) Exists(ctx context.Context, fp sharecode.Fingerprint) (bool, error) {
	resp, err := c.get(ctx, "/records/"+fp.Hex())
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusGone:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("%w: existence check returned %s", ErrBackend, resp.Status)
}

// FindRecord implements unlock.Backend.
func (c *Client) FindRecord(ctx context.Context, fp sharecode.Fingerprint) (unlock.Record, error) {
	resp, err := c.get(ctx, "/records/"+fp.Hex())
	if err != nil {
		return unlock.Record{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return unlock.Record{}, unlock.ErrNotFound
	case http.StatusGone:
		return unlock.Record{}, unlock.ErrExpired
	default:
		return unlock.Record{}, fmt.Errorf("%w: record lookup returned %s", ErrBackend, resp.Status)
	}

	var row recordRow
	if err := json.NewDecoder(resp.Body).Decode(&row); err != nil {
		return unlock.Record{}, fmt.Errorf("%w: decode record: %v", ErrBackend, err)
	}

	return unlock.Record{
		ID:          row.ID,
		Fingerprint: fp,
		Path:        row.FilePath,
		Kind:        pack.ParseKind(row.Type),
		CreatedAt:   row.CreatedAt,
		ExpiresAt:   row.ExpiresAt,
	}, nil
}

// FetchEnvelope implements unlock.Backend: request a signed read URL
// for the record's object, then fetch the bytes behind it.
func (c *Client) FetchEnvelope(ctx context.Context, rec unlock.Record) ([]byte, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost,
		c.base+"/blobs/"+rec.Path+"/url",
		strings.NewReader("{}"),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request read url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: sign url returned %s", ErrBackend, resp.Status)
	}

	var signed struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return nil, fmt.Errorf("%w: decode url: %v", ErrBackend, err)
	}

	blobResp, err := c.get(ctx, signed.URL)
	if err != nil {
		return nil, err
	}
	defer blobResp.Body.Close()

	if blobResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: blob fetch returned %s", ErrBackend, blobResp.Status)
	}

	return io.ReadAll(blobResp.Body)
}

// DeleteRecord implements unlock.Backend.
func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/records/"+id, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotFound:
		// A missing record is already burnt; nothing left to do.
		return nil
	}
	return fmt.Errorf("%w: delete returned %s", ErrBackend, resp.Status)
}

// PutEnvelope uploads an encrypted envelope under the given object
// name, declaring nothing but opaque bytes.
func (c *Client) PutEnvelope(ctx context.Context, name string, envelope []byte) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPut,
		c.base+"/blobs/"+name,
		bytes.NewReader(envelope),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("put envelope: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: blob put returned %s", ErrBackend, resp.Status)
	}
	return nil
}

// CreateRecord registers a record row and returns its id.
func (c *Client) CreateRecord(ctx context.Context, fp sharecode.Fingerprint, path string, kind pack.ContentKind, mimeType string, expiresAt time.Time) (string, error) {
	body, err := json.Marshal(recordRow{
		Code:      fp.Hex(),
		FilePath:  path,
		Type:      kind.String(),
		MimeType:  mimeType,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost,
		c.base+"/records",
		bytes.NewReader(body),
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: record create returned %s", ErrBackend, resp.Status)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("%w: decode create response: %v", ErrBackend, err)
	}
	return created.ID, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request: %w", err)
	}
	return resp, nil
}
