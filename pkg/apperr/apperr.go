// Package apperr defines the error taxonomy shared by the gateway, the
// expansion service, the graph store and the HTTP surface.
//
// Errors are built on github.com/cockroachdb/errors: every constructor
// attaches a stack trace and tags the error with one of the sentinel kinds
// below. The tag answers both the standard library's errors.Is and the
// cockroachdb one, however many times the error has been wrapped.
package apperr

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// Kind classifies an error for callers and for the HTTP surface.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindDataIntegrity   Kind = "data_integrity"
	KindUpstream        Kind = "upstream_unavailable"
	KindInvalidArgument Kind = "invalid_argument"
	KindInternal        Kind = "internal"
)

// Sentinel kinds. Compare with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrDataIntegrity       = errors.New("data integrity violation")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidArgument     = errors.New("invalid argument")
)

// kindError tags cause with a sentinel kind.
type kindError struct {
	cause error
	kind  error
}

func (e *kindError) Error() string { return e.cause.Error() }
func (e *kindError) Unwrap() error { return e.cause }

// Is matches the sentinel kind.
func (e *kindError) Is(target error) bool { return target == e.kind }

func tag(err, kind error) error {
	return &kindError{cause: err, kind: kind}
}

// NotFound reports that a requested entity yields no rows.
func NotFound(format string, args ...interface{}) error {
	return tag(errors.Newf(format, args...), ErrNotFound)
}

// DataIntegrity reports malformed data received from an upstream collaborator.
func DataIntegrity(format string, args ...interface{}) error {
	return tag(errors.Newf(format, args...), ErrDataIntegrity)
}

// Upstream wraps a failure of the query gateway (driver error, timeout).
func Upstream(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrapf(err, format, args...)
	wrapped = errors.WithHint(wrapped, "the graph database may be down; retrying the same action is safe")
	return tag(wrapped, ErrUpstreamUnavailable)
}

// InvalidArgument reports a malformed request.
func InvalidArgument(format string, args ...interface{}) error {
	return tag(errors.Newf(format, args...), ErrInvalidArgument)
}

// KindOf classifies err. Untagged errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDataIntegrity):
		return KindDataIntegrity
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstream
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	default:
		return KindInternal
	}
}

// HTTPStatus maps err to the status code the HTTP surface answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusServiceUnavailable
	case "":
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Hints returns the user-facing hints attached anywhere in the chain.
func Hints(err error) []string {
	return errors.GetAllHints(err)
}
