// Package pack serializes a share package (payload bytes plus metadata)
// into a single self-describing buffer and parses it back.
//
// The encoding must carry mime type, file name and option flags inline,
// because the storage backend never learns the true content type; it
// only stores opaque encrypted blobs. The payload is base64-encoded
// inside a JSON document so binary and text content share one uniform
// text-safe encrypt/decrypt path, at the cost of roughly a third more
// space.
package pack

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ulikunitz/xz/lzma"
)

// Version is the current wire version of the package document.
const Version = 1

const compressionLzma = "lzma"

// ErrMalformedPackage indicates the buffer could not be decoded into a
// Package. Truncated or corrupt input surfaces as this error, never as
// partial data.
var ErrMalformedPackage = errors.New("pack: malformed package")

// Options carries the behavior flags travelling inside the encrypted
// package, plus the record time-to-live used at upload.
type Options struct {
	// BurnOnRead requests irreversible deletion of the record a fixed
	// delay after first reveal.
	BurnOnRead bool
	// BurnDelay is the view-time grace period before deletion. Only
	// whole seconds survive the wire format.
	BurnDelay time.Duration
	// TTL is the overall lifetime of the share record.
	TTL time.Duration
	// Compress applies lzma to the payload before the base64 step.
	Compress bool
}

// Package is the logical plaintext unit of the protocol. It is the only
// plaintext artifact that ever crosses the network, and it does so
// exclusively in encrypted form.
type Package struct {
	Payload  []byte
	MimeType string
	FileName string
	Options  Options
}

// Kind classifies the package's mime type.
func (p Package) Kind() ContentKind {
	return KindOf(p.MimeType)
}

type wireOptions struct {
	Burn         bool  `json:"burn"`
	BurnDelaySec int   `json:"burnDelaySec"`
	TTLSec       int64 `json:"ttlSec"`
}

type wirePackage struct {
	V           int         `json:"v"`
	Mime        string      `json:"mime"`
	Name        string      `json:"name"`
	Payload     string      `json:"payload"`
	Compression string      `json:"compression,omitempty"`
	Options     wireOptions `json:"options"`
}

// Serialize encodes the package into its wire form.
func Serialize(p Package) ([]byte, error) {
	payload := p.Payload

	doc := wirePackage{
		V:    Version,
		Mime: p.MimeType,
		Name: p.FileName,
		Options: wireOptions{
			Burn:         p.Options.BurnOnRead,
			BurnDelaySec: int(p.Options.BurnDelay / time.Second),
			TTLSec:       int64(p.Options.TTL / time.Second),
		},
	}

	if p.Options.Compress {
		compressed, err := compressLzma(payload)
		if err != nil {
			return nil, fmt.Errorf("compress payload: %w", err)
		}
		payload = compressed
		doc.Compression = compressionLzma
	}

	doc.Payload = base64.StdEncoding.EncodeToString(payload)

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode package: %w", err)
	}
	return out, nil
}

// Deserialize parses a wire buffer back into a Package. The round trip
// Deserialize(Serialize(p)) is lossless. Malformed input yields an error
// wrapping ErrMalformedPackage.
func Deserialize(data []byte) (Package, error) {
	var doc wirePackage
	if err := json.Unmarshal(data, &doc); err != nil {
		return Package{}, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}

	if doc.V != Version {
		return Package{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedPackage, doc.V)
	}

	payload, err := base64.StdEncoding.DecodeString(doc.Payload)
	if err != nil {
		return Package{}, fmt.Errorf("%w: payload encoding: %v", ErrMalformedPackage, err)
	}

	compressed := false
	switch doc.Compression {
	case "":
	case compressionLzma:
		compressed = true
		payload, err = decompressLzma(payload)
		if err != nil {
			return Package{}, fmt.Errorf("%w: payload compression: %v", ErrMalformedPackage, err)
		}
	default:
		return Package{}, fmt.Errorf("%w: unknown compression %q", ErrMalformedPackage, doc.Compression)
	}

	if payload == nil {
		payload = []byte{}
	}

	return Package{
		Payload:  payload,
		MimeType: doc.Mime,
		FileName: doc.Name,
		Options: Options{
			BurnOnRead: doc.Options.Burn,
			BurnDelay:  time.Duration(doc.Options.BurnDelaySec) * time.Second,
			TTL:        time.Duration(doc.Options.TTLSec) * time.Second,
			Compress:   compressed,
		},
	}, nil
}

func compressLzma(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(data); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err = buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
