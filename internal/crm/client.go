// Package crm defines the external CRM client contract the dedup core
// consumes. The concrete HTTP-backed client lives outside this
// repository's scope — here only the interface, page iterator, and errors
// callers need to depend on are defined.
package crm

import (
	"context"

	"github.com/kestrelcrm/dedupd/internal/coreerr"
	"github.com/kestrelcrm/dedupd/internal/record"
)

// Page is one page of records returned from FetchAll.
type Page struct {
	Records []record.Record
	Done    bool // true once no further pages remain
}

// PageFetcher pulls successive pages inside a single logical import run. It
// is not restartable: Next must not be called again after Done is true, and
// a new import run creates a new PageFetcher.
type PageFetcher interface {
	Next(ctx context.Context) (Page, error)
}

// AccountInfo identifies the connected CRM tenant.
type AccountInfo struct {
	PortalID string
}

// MergeError carries the CRM's HTTP status code when available, so
// MergeExecutor can classify retryable vs. terminal failures.
type MergeError struct {
	StatusCode int
	Err        error
}

func (e *MergeError) Error() string {
	if e.Err == nil {
		return "crm merge failed"
	}
	return e.Err.Error()
}

func (e *MergeError) Unwrap() error { return e.Err }

// Retryable reports whether MergeExecutor's retry policy applies: network
// errors (no status code) and HTTP 429/500/502/503/504.
func (e *MergeError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	switch e.StatusCode {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Client is the external CRM collaborator. The core treats the CRM object
// model, rate limiting, and network-level retry as this collaborator's
// concern; MergeExecutor layers only its own per-merge retry policy on
// top of Merge.
type Client interface {
	// FetchAll begins one import run for kind, requesting the named
	// properties, and returns a PageFetcher that must be fully drained or
	// abandoned before this run ends.
	FetchAll(ctx context.Context, kind record.Kind, properties []string) (PageFetcher, error)

	// Merge absorbs secondaryID into primaryID on the remote CRM.
	Merge(ctx context.Context, kind record.Kind, primaryID, secondaryID string) error

	// AccountInfo identifies the connected tenant via a dedicated call,
	// rather than inference from another response shape.
	AccountInfo(ctx context.Context) (AccountInfo, error)
}

// ErrNotConnected is returned by Client implementations when called before
// authenticate() has established a session.
var ErrNotConnected = coreerr.New(coreerr.NotInitialized, "crm client is not connected")
