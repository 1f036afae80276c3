package crm

import (
	"context"

	"github.com/kestrelcrm/dedupd/internal/record"
)

// Unconfigured is a placeholder Client that always reports ErrNotConnected.
// The host application wires a real implementation (the HTTP-backed CRM
// adapter) before running import or merge; this exists so the engine and
// CLI can be constructed and exercised in tests without one.
type Unconfigured struct{}

func (Unconfigured) FetchAll(ctx context.Context, kind record.Kind, properties []string) (PageFetcher, error) {
	return nil, ErrNotConnected
}

func (Unconfigured) Merge(ctx context.Context, kind record.Kind, primaryID, secondaryID string) error {
	return ErrNotConnected
}

func (Unconfigured) AccountInfo(ctx context.Context) (AccountInfo, error) {
	return AccountInfo{}, ErrNotConnected
}
