package pack

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func genOptions(t *rapid.T) Options {
	return Options{
		BurnOnRead: rapid.Bool().Draw(t, "burn"),
		// Sub-second precision does not survive the wire format.
		BurnDelay: time.Duration(rapid.IntRange(0, 3600).Draw(t, "burnDelaySec")) * time.Second,
		TTL:       time.Duration(rapid.Int64Range(0, 86_400*30).Draw(t, "ttlSec")) * time.Second,
		Compress:  rapid.Bool().Draw(t, "compress"),
	}
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := Package{
			Payload:  rapid.SliceOf(rapid.Byte()).Draw(t, "payload"),
			MimeType: rapid.SampledFrom([]string{"text/plain", "image/png", "application/pdf", "application/octet-stream", ""}).Draw(t, "mime"),
			FileName: rapid.StringMatching(`[a-zA-Z0-9._ -]{0,64}`).Draw(t, "name"),
			Options:  rapid.Custom(genOptions).Draw(t, "options"),
		}

		data, err := Serialize(p)
		if err != nil {
			t.Fatalf("Serialize failed: %v", err)
		}

		got, err := Deserialize(data)
		if err != nil {
			t.Fatalf("Deserialize failed: %v", err)
		}

		if !bytes.Equal(p.Payload, got.Payload) {
			t.Fatalf("payload mismatch: %d vs %d bytes", len(p.Payload), len(got.Payload))
		}
		if got.MimeType != p.MimeType || got.FileName != p.FileName {
			t.Fatalf("metadata mismatch: %+v vs %+v", p, got)
		}
		if got.Options != p.Options {
			t.Fatalf("options mismatch: %+v vs %+v", p.Options, got.Options)
		}
	})
}

func TestSerialize_TextSafe(t *testing.T) {
	// Binary payloads must come out as a single valid JSON document, so
	// the encrypt input is uniformly text-shaped.
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}

	data, err := Serialize(Package{Payload: payload, MimeType: "application/octet-stream"})
	require.NoError(t, err)
	assert.True(t, json.Valid(data), "wire form must be valid JSON")
}

func TestDeserialize_NilPayloadBecomesEmpty(t *testing.T) {
	data, err := Serialize(Package{MimeType: "text/plain"})
	require.NoError(t, err)

	got, err := Deserialize(data)
	require.NoError(t, err)
	assert.NotNil(t, got.Payload)
	assert.Empty(t, got.Payload)
}

func TestDeserialize_CompressedPayload(t *testing.T) {
	payload := bytes.Repeat([]byte("compressible content "), 1000)
	p := Package{
		Payload:  payload,
		MimeType: "text/plain",
		FileName: "big.txt",
		Options:  Options{Compress: true},
	}

	data, err := Serialize(p)
	require.NoError(t, err)
	assert.Less(t, len(data), len(payload), "lzma should shrink repetitive input")

	got, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, payload, got.Payload)
	assert.True(t, got.Options.Compress)
}

func TestDeserialize_Malformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":              {},
		"not json":           []byte("definitely not json"),
		"truncated":          []byte(`{"v":1,"mime":"te`),
		"wrong version":      []byte(`{"v":99,"payload":""}`),
		"bad base64":         []byte(`{"v":1,"payload":"!!!not-base64!!!"}`),
		"unknown compressor": []byte(`{"v":1,"payload":"","compression":"zstd"}`),
		"bad lzma stream":    []byte(`{"v":1,"payload":"aGVsbG8=","compression":"lzma"}`),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Deserialize(data)
			require.ErrorIs(t, err, ErrMalformedPackage)
		})
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		mime string
		want ContentKind
	}{
		{"text/plain", KindText},
		{"text/html; charset=utf-8", KindText},
		{"application/json", KindText},
		{"image/png", KindImage},
		{"IMAGE/JPEG", KindImage},
		{"video/mp4", KindVideo},
		{"audio/ogg", KindAudio},
		{"application/pdf", KindDocument},
		{"application/zip", KindArchive},
		{"application/octet-stream", KindBinary},
		{"", KindBinary},
		{"nonsense", KindBinary},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KindOf(tc.mime), "mime %q", tc.mime)
	}
}

func TestKind_StringParseRoundTrip(t *testing.T) {
	kinds := []ContentKind{
		KindBinary, KindText, KindImage, KindVideo,
		KindAudio, KindDocument, KindArchive,
	}
	for _, k := range kinds {
		assert.Equal(t, k, ParseKind(k.String()))
	}
	assert.Equal(t, KindBinary, ParseKind("garbage"))
}
