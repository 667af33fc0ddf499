package recon

import (
	"context"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

// ClaimExporter receives claim records after a match is committed, so the
// ledger subsystem can mark the movements as reconciled on its own side.
// Export failures never roll back a committed match; they are logged and the
// ledger catches up from a later full export.
type ClaimExporter interface {
	ExportClaims(ctx context.Context, records []domain.ClaimRecord) error
}

// NoopExporter discards claim records. Used by the CLI and tests.
type NoopExporter struct{}

// ExportClaims implements ClaimExporter.
func (NoopExporter) ExportClaims(ctx context.Context, records []domain.ClaimRecord) error {
	return nil
}
