// Package apperr defines the error kinds surfaced by the AI pipeline and the
// envelope they are reported in.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindConfiguration      Kind = "ConfigurationError"
	KindRequestValidation  Kind = "RequestValidationError"
	KindProviderInvocation Kind = "ProviderInvocationError"
	KindResponseFormat     Kind = "ResponseFormatError"
	KindSchemaValidation   Kind = "SchemaValidationError"
	KindSafetyBlock        Kind = "SafetyBlockError"
	KindResourceCleanup    Kind = "ResourceCleanupError"
	KindInternal           Kind = "InternalError"
)

// HTTPStatus returns the status code a failure of this kind is reported with.
func (k Kind) HTTPStatus() int {
	if k == KindRequestValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Error is a classified pipeline failure.
type Error struct {
	Kind    Kind
	Message string
	// BlockReason is set for KindSafetyBlock.
	BlockReason string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind that wraps err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// SafetyBlock creates a KindSafetyBlock error carrying the provider's reason.
func SafetyBlock(provider, reason string) *Error {
	return &Error{
		Kind:        KindSafetyBlock,
		Message:     fmt.Sprintf("%s declined to produce output (reason: %s)", provider, reason),
		BlockReason: reason,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Envelope is the transport-neutral view of a failure.
type Envelope struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
}

// EnvelopeFor builds the envelope reported for err.
func EnvelopeFor(err error) Envelope {
	var e *Error
	if errors.As(err, &e) {
		return Envelope{
			Kind:       e.Kind,
			Message:    e.Error(),
			HTTPStatus: e.Kind.HTTPStatus(),
		}
	}
	return Envelope{
		Kind:       KindInternal,
		Message:    fmt.Sprintf("%s: %v", KindInternal, err),
		HTTPStatus: KindInternal.HTTPStatus(),
	}
}
