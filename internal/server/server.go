// Package server exposes the operations over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nitro41992/splitting-sucks/internal/canonical"
	"github.com/nitro41992/splitting-sucks/internal/operation"
	"github.com/nitro41992/splitting-sucks/internal/telemetry"
)

// MaxBodySize bounds a request body. Phone photos sent as base64 run large.
const MaxBodySize = int64(50 << 20)

// DefaultRequestTimeout bounds each operation when Config leaves it unset
const DefaultRequestTimeout = 120 * time.Second

// Operations is the work the server dispatches to
type Operations interface {
	ParseReceipt(ctx context.Context, req operation.ParseReceiptRequest) (*canonical.ReceiptDocument, error)
	AssignPeople(ctx context.Context, req operation.AssignmentRequest) (*canonical.AssignmentResult, error)
	Transcribe(ctx context.Context, req operation.TranscribeRequest) (*canonical.Transcript, error)
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

func (b BasicAuth) enabled() bool {
	return b.Username != "" || b.Password != ""
}

// Config holds the server settings
type Config struct {
	BasicAuth      BasicAuth
	RequestTimeout time.Duration
	Version        string
}

// Server handles HTTP requests for the operations
type Server struct {
	ops    Operations
	config Config
	mux    *http.ServeMux
}

// NewServer creates a new Server with default mux
func NewServer(ops Operations, cfg Config) *Server {
	return NewServerWithMux(ops, cfg, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(ops Operations, cfg Config, mux *http.ServeMux) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	s := &Server{
		ops:    ops,
		config: cfg,
		mux:    mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if !s.config.BasicAuth.enabled() {
		return true
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.config.BasicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.config.BasicAuth.Password)) == 1
	return userOK && passOK
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Receipt Splitter"`)
			writeErrorStatus(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

// postOnly rejects every method but POST with 405
func postOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST, OPTIONS")
			writeErrorStatus(w, http.StatusMethodNotAllowed, "RequestValidationError: method "+r.Method+" not allowed")
			return
		}
		next(w, r)
	}
}

// withTimeout bounds the request context by the configured deadline
func (s *Server) withTimeout(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	endpoint := func(h http.HandlerFunc) http.HandlerFunc {
		return postOnly(s.requireAuth(s.withTimeout(h)))
	}

	s.mux.HandleFunc("/parse_receipt", endpoint(s.handleParseReceipt))
	s.mux.HandleFunc("/assign_people_to_items", endpoint(s.handleAssignPeople))
	s.mux.HandleFunc("/transcribe_audio", endpoint(s.handleTranscribeAudio))

	// Liveness probes run without credentials
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.mux.HandleFunc("/", handleNotFound)
}

// ServeHTTP applies CORS to every response and answers preflight requests
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.mux.ServeHTTP(w, r)
}

// Start serves on addr until ctx is cancelled, then drains in-flight requests
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           telemetry.Handler(s, "splitter"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.RequestTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
