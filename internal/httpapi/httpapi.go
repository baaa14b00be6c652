// Package httpapi exposes the record and object stores over HTTP. It is
// the stand-in for the remote backend the client protocol talks to:
// fingerprint-indexed record lookup, opaque blob storage and signed
// time-limited blob reads. Nothing in this surface ever handles a raw
// share code.
package httpapi

import (
	"net/http"

	"github.com/sealdrop/sealdrop/internal/blobstore"
	"github.com/sealdrop/sealdrop/internal/recordstore"

	"log/slog"
)

// MaxEnvelopeBytes bounds a single uploaded envelope.
const MaxEnvelopeBytes = 1 << 28 // 256 MB

// AuthFunc vets a request before it reaches a handler.
type AuthFunc func(r *http.Request) error

func defaultAuth(*http.Request) error { return nil }

// Server serves the store API.
type Server struct {
	mux     *http.ServeMux
	records *recordstore.Store
	blobs   *blobstore.Store
	log     *slog.Logger
	auth    AuthFunc
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithAuth installs a request authorizer.
func WithAuth(auth AuthFunc) Option {
	return func(s *Server) {
		if auth != nil {
			s.auth = auth
		}
	}
}

// New builds a server over the two stores.
func New(records *recordstore.Store, blobs *blobstore.Store, opts ...Option) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		records: records,
		blobs:   blobs,
		log:     slog.Default(),
		auth:    defaultAuth,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /records/{fingerprint}", s.handleRecordGet)
	s.mux.HandleFunc("POST /records", s.handleRecordCreate)
	s.mux.HandleFunc("DELETE /records/{id}", s.handleRecordDelete)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("PUT /blobs/{name}", s.handleBlobPut)
	s.mux.HandleFunc("POST /blobs/{name}/url", s.handleBlobSignURL)
	s.mux.HandleFunc("GET /blobs/{name}", s.handleBlobGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	} else {
		w.Header().Set("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)

	allowedHeaders := r.Header.Get("Access-Control-Request-Headers")
	if allowedHeaders == "" {
		allowedHeaders = "Content-Type, Accept"
	}
	w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.auth(r); err != nil {
		s.log.Warn("authentication failed", "error", err)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	s.mux.ServeHTTP(w, r)
}
