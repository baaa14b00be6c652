package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sealdrop/sealdrop/internal/blobstore"
	"github.com/sealdrop/sealdrop/internal/recordstore"
	"github.com/sealdrop/sealdrop/pkg/sharecode"
)

const defaultURLTTL = 5 * time.Minute

type errorResponse struct {
	Error string `json:"error"`
}

type createRecordRequest struct {
	ID        string    `json:"id,omitempty"`
	Code      string    `json:"code"`
	FilePath  string    `json:"file_path"`
	Type      string    `json:"type"`
	MimeType  string    `json:"mime_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

type createRecordResponse struct {
	ID string `json:"id"`
}

type signURLRequest struct {
	TTLSec int64 `json:"ttlSec"`
}

type signURLResponse struct {
	URL string `json:"url"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

func (s *Server) handleRecordGet(w http.ResponseWriter, r *http.Request) {
	fpHex := r.PathValue("fingerprint")
	fp, err := sharecode.ParseFingerprint(fpHex)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid fingerprint: %v", err), http.StatusBadRequest)
		return
	}

	rec, err := s.records.GetByFingerprint(r.Context(), fp)
	switch {
	case errors.Is(err, recordstore.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found"})
		return
	case errors.Is(err, recordstore.ErrExpiredRecord):
		writeJSON(w, http.StatusGone, errorResponse{Error: "expired"})
		return
	case err != nil:
		s.log.Error("record lookup failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRecordCreate(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
		return
	}

	if _, err := sharecode.ParseFingerprint(req.Code); err != nil {
		http.Error(w, fmt.Sprintf("invalid code fingerprint: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.FilePath) == "" {
		http.Error(w, "file_path is required", http.StatusBadRequest)
		return
	}
	if req.ExpiresAt.IsZero() {
		http.Error(w, "expires_at is required", http.StatusBadRequest)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	rec := recordstore.Record{
		ID:        id,
		Code:      req.Code,
		FilePath:  req.FilePath,
		Type:      req.Type,
		MimeType:  req.MimeType,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: req.ExpiresAt,
	}

	err := s.records.Insert(r.Context(), rec)
	switch {
	case errors.Is(err, recordstore.ErrDuplicateFingerprint):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "duplicate_fingerprint"})
		return
	case err != nil:
		s.log.Error("record insert failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, createRecordResponse{ID: id})
}

func (s *Server) handleRecordDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "invalid record id", http.StatusBadRequest)
		return
	}

	err := s.records.DeleteByID(r.Context(), id)
	switch {
	case errors.Is(err, recordstore.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found"})
		return
	case err != nil:
		s.log.Error("record delete failed", "error", err, "id", id)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.records.Stats(r.Context())
	if err != nil {
		s.log.Error("stats failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleBlobPut(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	// The store only ever accepts opaque bytes; a declared content type
	// would leak what the envelope hides.
	if ct := r.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		http.Error(w, "content type must be application/octet-stream", http.StatusUnsupportedMediaType)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxEnvelopeBytes)
	envelope, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadRequest)
		return
	}

	err = s.blobs.Put(name, envelope)
	switch {
	case errors.Is(err, blobstore.ErrInvalidName):
		http.Error(w, "invalid object name", http.StatusBadRequest)
		return
	case errors.Is(err, blobstore.ErrNotEnoughSpace):
		s.log.Error("blob store out of space", "error", err)
		writeJSON(w, http.StatusInsufficientStorage, errorResponse{Error: err.Error()})
		return
	case err != nil:
		s.log.Error("blob put failed", "error", err, "object", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleBlobSignURL(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req signURLRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
		return
	}

	ttl := defaultURLTTL
	if req.TTLSec > 0 {
		ttl = time.Duration(req.TTLSec) * time.Second
	}

	u, err := s.blobs.SignedURL(name, ttl)
	switch {
	case errors.Is(err, blobstore.ErrInvalidName):
		http.Error(w, "invalid object name", http.StatusBadRequest)
		return
	case err != nil:
		s.log.Error("sign url failed", "error", err, "object", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, signURLResponse{URL: u})
}

func (s *Server) handleBlobGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	exp := r.URL.Query().Get("exp")
	sig := r.URL.Query().Get("sig")
	if err := s.blobs.VerifySignedQuery(name, exp, sig); err != nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	data, err := s.blobs.Get(name)
	switch {
	case errors.Is(err, blobstore.ErrInvalidName):
		http.Error(w, "invalid object name", http.StatusBadRequest)
		return
	case errors.Is(err, blobstore.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found"})
		return
	case err != nil:
		s.log.Error("blob get failed", "error", err, "object", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	// Always served opaque, never with a real content type.
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.log.Error("blob write failed", "error", err, "object", name)
	}
}
