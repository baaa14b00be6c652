package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealdrop/sealdrop/internal/blobstore"
	"github.com/sealdrop/sealdrop/internal/recordstore"
	"github.com/sealdrop/sealdrop/pkg/sharecode"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *recordstore.Store, *blobstore.Store) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	records, err := recordstore.Open(recordstore.Config{Path: t.TempDir(), Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	blobs, err := blobstore.Open(blobstore.Config{Path: t.TempDir(), Logger: logger})
	require.NoError(t, err)

	return New(records, blobs, opts...), records, blobs
}

func createRecord(t *testing.T, srv *Server, code string, ttl time.Duration) (string, sharecode.Fingerprint) {
	t.Helper()

	fp := sharecode.FingerprintOf(code)
	body, err := json.Marshal(map[string]any{
		"code":       fp.Hex(),
		"file_path":  blobstore.ObjectName(fp, time.Now()),
		"type":       "text",
		"mime_type":  "application/octet-stream",
		"expires_at": time.Now().Add(ttl).UTC(),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/records", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	return created.ID, fp
}

func TestRecordLifecycle(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id, fp := createRecord(t, srv, "ABCD-2345", time.Hour)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/"+fp.Hex(), nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var rec recordstore.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, fp.Hex(), rec.Code)

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/records/"+id, nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/"+fp.Hex(), nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRecordGet_InvalidFingerprint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/nothex", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRecordGet_Expired(t *testing.T) {
	srv, _, _ := newTestServer(t)
	_, fp := createRecord(t, srv, "ABCD-2345", -time.Minute)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/"+fp.Hex(), nil))
	assert.Equal(t, http.StatusGone, rr.Code)
}

func TestRecordCreate_DuplicateFingerprint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	createRecord(t, srv, "ABCD-2345", time.Hour)

	fp := sharecode.FingerprintOf("ABCD-2345")
	body, _ := json.Marshal(map[string]any{
		"code":       fp.Hex(),
		"file_path":  blobstore.ObjectName(fp, time.Now()),
		"expires_at": time.Now().Add(time.Hour).UTC(),
	})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/records", bytes.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRecordDelete_Validation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/records/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/records/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBlobPutAndSignedGet(t *testing.T) {
	srv, _, _ := newTestServer(t)
	name := blobstore.ObjectName(sharecode.FingerprintOf("ABCD-2345"), time.Now())
	envelope := []byte{0xde, 0xad, 0xbe, 0xef}

	req := httptest.NewRequest(http.MethodPut, "/blobs/"+name, bytes.NewReader(envelope))
	req.Header.Set("Content-Type", "application/octet-stream")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	// Unsigned reads are refused outright.
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/blobs/"+name, nil))
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/blobs/"+name+"/url", bytes.NewReader([]byte("{}"))))
	require.Equal(t, http.StatusOK, rr.Code)

	var signed struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &signed))

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, signed.URL, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/octet-stream", rr.Header().Get("Content-Type"))
	assert.Equal(t, envelope, rr.Body.Bytes())
}

func TestBlobPut_RejectsDeclaredContentType(t *testing.T) {
	srv, _, _ := newTestServer(t)
	name := blobstore.ObjectName(sharecode.FingerprintOf("ABCD-2345"), time.Now())

	req := httptest.NewRequest(http.MethodPut, "/blobs/"+name, bytes.NewReader([]byte("x")))
	req.Header.Set("Content-Type", "image/png")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
}

func TestBlobPut_InvalidName(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/blobs/evilname", bytes.NewReader([]byte("x"))))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	createRecord(t, srv, "ABCD-2345", time.Hour)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var stats recordstore.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByType["text"])
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/records", nil)
	req.Header.Set("Origin", "https://drop.example.org")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://drop.example.org", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestAuthHookRejects(t *testing.T) {
	srv, _, _ := newTestServer(t, WithAuth(func(r *http.Request) error {
		if r.Header.Get("Authorization") != "Bearer sesame" {
			return errors.New("missing token")
		}
		return nil
	}))

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer sesame")
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRecordCreate_Validation(t *testing.T) {
	srv, _, _ := newTestServer(t)
	fp := sharecode.FingerprintOf("ABCD-2345")

	cases := map[string]map[string]any{
		"bad fingerprint": {
			"code":       "nothex",
			"file_path":  "x",
			"expires_at": time.Now().Add(time.Hour),
		},
		"missing file path": {
			"code":       fp.Hex(),
			"expires_at": time.Now().Add(time.Hour),
		},
		"missing expiry": {
			"code":      fp.Hex(),
			"file_path": "x",
		},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			body, err := json.Marshal(payload)
			require.NoError(t, err)

			rr := httptest.NewRecorder()
			srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/records", bytes.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rr.Code, fmt.Sprintf("case %q", name))
		})
	}
}
