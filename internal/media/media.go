// Package media turns client supplied media into scoped temporary files.
//
// Media arrives either inline as base64 or as a gs://bucket/object
// reference resolved against a local bucket mirror. Every acquisition is
// copied into a scratch directory and returned as a Handle whose Release
// must be called on every exit path.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nitro41992/splitting-sucks/internal/apperr"
)

// Kind is the class of media an operation accepts
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// accepts reports whether mimeType is acceptable for the kind
func (k Kind) accepts(mimeType string) bool {
	switch k {
	case KindImage:
		return strings.HasPrefix(mimeType, "image/") || mimeType == "application/pdf"
	case KindAudio:
		return strings.HasPrefix(mimeType, "audio/") ||
			mimeType == "video/mp4" ||
			mimeType == "video/webm" ||
			mimeType == "application/ogg" ||
			mimeType == "application/octet-stream"
	}
	return false
}

// Input is media as a client supplies it. Data wins over URI when both are set.
type Input struct {
	// Data is base64 encoded, optionally as a data: URL
	Data     string
	URI      string
	MIMEType string
}

// Empty reports whether neither form was supplied
func (in Input) Empty() bool {
	return strings.TrimSpace(in.Data) == "" && strings.TrimSpace(in.URI) == ""
}

// IDGenerator generates unique scratch file names
type IDGenerator interface {
	Generate() string
}

type defaultIDGenerator struct {
	counter atomic.Uint64
}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), g.counter.Add(1))
}

// Acquirer resolves Inputs into scoped Handles
type Acquirer struct {
	buckets     Storage
	scratch     Storage
	idGenerator IDGenerator
	logger      *slog.Logger
}

// NewAcquirer creates an Acquirer. buckets may be nil, in which case
// reference URIs are rejected.
func NewAcquirer(buckets, scratch Storage) *Acquirer {
	return NewAcquirerWithOptions(buckets, scratch, &defaultIDGenerator{}, slog.Default())
}

// NewAcquirerWithOptions creates an Acquirer with a custom ID generator and logger for testing
func NewAcquirerWithOptions(buckets, scratch Storage, idGenerator IDGenerator, logger *slog.Logger) *Acquirer {
	return &Acquirer{
		buckets:     buckets,
		scratch:     scratch,
		idGenerator: idGenerator,
		logger:      logger,
	}
}

// Acquire copies the media into the scratch directory and returns a handle
// to it. Client mistakes are reported as RequestValidationError.
func (a *Acquirer) Acquire(ctx context.Context, in Input, kind Kind) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "acquiring %s", kind)
	}

	var (
		data     []byte
		mimeType = normalizeMIMEType(in.MIMEType)
		name     string
		err      error
	)

	switch {
	case strings.TrimSpace(in.Data) != "":
		if in.URI != "" {
			a.logger.Debug("Both inline data and URI supplied, ignoring URI", "kind", kind, "uri", in.URI)
		}
		var dataURLType string
		data, dataURLType, err = decodeInline(in.Data)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindRequestValidation, err, "invalid %sData", kind)
		}
		if mimeType == "" {
			mimeType = dataURLType
		}
	case strings.TrimSpace(in.URI) != "":
		name, data, err = a.fetch(in.URI)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindRequestValidation, err, "invalid %sUri", kind)
		}
	default:
		return nil, apperr.New(apperr.KindRequestValidation, "%sData or %sUri is required", kind, kind)
	}

	if len(data) == 0 {
		return nil, apperr.New(apperr.KindRequestValidation, "%s is empty", kind)
	}

	if mimeType == "" {
		mimeType = detectMIMEType(name, data)
	}
	if !kind.accepts(mimeType) {
		return nil, apperr.New(apperr.KindRequestValidation, "unsupported %s type %q", kind, mimeType)
	}

	filename := a.idGenerator.Generate() + extensionFor(mimeType, name)
	saved, err := a.scratch.Save(filename, data)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "writing %s to scratch space", kind)
	}

	a.logger.Debug("Acquired media", "kind", kind, "mime_type", mimeType, "size", len(data))

	return &Handle{
		MIMEType: mimeType,
		Size:     len(data),
		path:     saved,
		storage:  a.scratch,
		logger:   a.logger,
	}, nil
}

// fetch reads a gs://bucket/object reference from the bucket mirror
func (a *Acquirer) fetch(uri string) (string, []byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return "", nil, err
	}
	if a.buckets == nil {
		return "", nil, fmt.Errorf("no media directory configured for %s", uri)
	}
	data, err := a.buckets.Get(bucket + "/" + object)
	if err != nil {
		return "", nil, fmt.Errorf("reading %s: %w", uri, err)
	}
	return object, data, nil
}

// ParseURI splits gs://bucket/object into its parts. Objects that would
// escape the bucket are rejected.
func ParseURI(uri string) (string, string, error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("unsupported URI %q: expected gs://bucket/object", uri)
	}
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("malformed URI %q: expected gs://bucket/object", uri)
	}
	if bucket == "." || bucket == ".." || strings.Contains(bucket, `\`) {
		return "", "", fmt.Errorf("malformed bucket in %q", uri)
	}
	for _, segment := range strings.Split(object, "/") {
		if segment == ".." {
			return "", "", fmt.Errorf("object path in %q escapes its bucket", uri)
		}
	}
	return bucket, path.Clean(object), nil
}

// decodeInline decodes base64 media. A data: URL prefix is accepted and
// its media type returned.
func decodeInline(encoded string) ([]byte, string, error) {
	encoded = strings.TrimSpace(encoded)
	var mimeType string
	if rest, ok := strings.CutPrefix(encoded, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("data URL is not base64 encoded")
		}
		mimeType = normalizeMIMEType(strings.TrimSuffix(header, ";base64"))
		encoded = payload
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// Clients sometimes drop the padding
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if rawErr != nil {
			return nil, "", fmt.Errorf("decoding base64: %w", err)
		}
	}
	return data, mimeType, nil
}

func normalizeMIMEType(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		return parsed
	}
	return strings.ToLower(mimeType)
}

// extraTypes covers extensions the system MIME table often lacks
var extraTypes = map[string]string{
	".heic": "image/heic",
	".heif": "image/heif",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".webm": "audio/webm",
	".pdf":  "application/pdf",
}

// detectMIMEType guesses the type from the object name, then the content
func detectMIMEType(name string, data []byte) string {
	if ext := strings.ToLower(path.Ext(name)); ext != "" {
		if t, ok := extraTypes[ext]; ok {
			return t
		}
		if t := mime.TypeByExtension(ext); t != "" {
			return normalizeMIMEType(t)
		}
	}
	if isHEICFormat(data) {
		return "image/heic"
	}
	return normalizeMIMEType(http.DetectContentType(data))
}

func extensionFor(mimeType, name string) string {
	if ext := path.Ext(name); ext != "" && !strings.ContainsAny(ext, `/\`) {
		return strings.ToLower(ext)
	}
	for ext, t := range extraTypes {
		if t == mimeType {
			return ext
		}
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// Handle is a scoped temporary copy of request media
type Handle struct {
	MIMEType string
	Size     int

	path    string
	storage Storage
	logger  *slog.Logger
	once    sync.Once
}

// Bytes reads the media back from scratch space
func (h *Handle) Bytes() ([]byte, error) {
	data, err := h.storage.Get(h.path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "reading scratch media")
	}
	return data, nil
}

// Release removes the temporary file. It is safe to call more than once. A
// failure is logged as a ResourceCleanupError and never returned.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if err := h.storage.Delete(h.path); err != nil {
			cleanupErr := apperr.Wrap(apperr.KindResourceCleanup, err, "removing scratch media %s", h.path)
			h.logger.Warn("Failed to release scratch media", "error", cleanupErr)
		}
	})
}
