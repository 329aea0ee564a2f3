package archive

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNotFound is returned by Store.Read when no record exists for the id.
var ErrNotFound = errors.New("archive: record not found")

// FetchErrorKind distinguishes the retryable failure classes. Both kinds
// count toward the failure ledger; the split exists for reporting and logs.
type FetchErrorKind int

// Fetch error kinds.
const (
	// KindTransient covers DNS failures, timeouts, and connection resets.
	KindTransient FetchErrorKind = iota
	// KindRejected covers HTTP-level 4xx/5xx rejections from the target.
	KindRejected
)

// String names the kind for logs and reports.
func (k FetchErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// FetchError is a classified per-URL fetch failure.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

// Error implements error.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.URL, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewRejectionError builds a FetchError for an HTTP-level rejection.
func NewRejectionError(url string, status int, err error) *FetchError {
	return &FetchError{Kind: KindRejected, URL: url, StatusCode: status, Err: err}
}

// ClassifyFetchError wraps an arbitrary fetch failure into a FetchError.
// Timeouts (including context deadlines) and network errors classify as
// transient; an error that already is a FetchError passes through.
func ClassifyFetchError(url string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := KindTransient
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTransient
	case errors.As(err, &netErr):
		kind = KindTransient
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}

// StorageError marks an archive-write failure. It is fatal to the run: it
// signals an environment problem, not a per-URL condition.
type StorageError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err carries a StorageError anywhere in its
// chain.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// ConfigError marks a startup misconfiguration (missing fetcher, unreadable
// link list). The run never begins.
type ConfigError struct {
	Reason string
}

// Error implements error.
func (e *ConfigError) Error() string {
	return "configuration: " + e.Reason
}
