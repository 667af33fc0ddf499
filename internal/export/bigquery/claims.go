// Package bigquery streams committed claim records and run results into
// BigQuery, where the ledger subsystem and audit tooling pick them up. The
// engine treats this sink as best effort: a failed export never rolls back a
// committed match.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/teris-io/shortid"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

const (
	claimsTable  = "reconciliation_claims"
	resultsTable = "reconciliation_runs"
)

// ClaimRow is one exported claim in the reconciliation_claims table.
type ClaimRow struct {
	ClaimID         string    `bigquery:"claim_id"`
	ExportRef       string    `bigquery:"export_ref"`
	TenantID        string    `bigquery:"tenant_id"`
	StatementID     string    `bigquery:"statement_id"`
	StatementLineID string    `bigquery:"statement_line_id"`
	MovementID      string    `bigquery:"movement_id"`
	MovementKind    string    `bigquery:"movement_kind"`
	Manual          bool      `bigquery:"manual"`
	MatchedTS       time.Time `bigquery:"matched_ts"`
	ExportedTS      time.Time `bigquery:"exported_ts"`
}

// ResultRow is one exported matching-run summary in the reconciliation_runs
// table.
type ResultRow struct {
	RunID           string    `bigquery:"run_id"`
	TenantID        string    `bigquery:"tenant_id"`
	StatementID     string    `bigquery:"statement_id"`
	TotalLines      int64     `bigquery:"total_lines"`
	MatchedLines    int64     `bigquery:"matched_lines"`
	MatchPercentage float64   `bigquery:"match_percentage"`
	NewMatches      int64     `bigquery:"new_matches"`
	FinishedTS      time.Time `bigquery:"finished_ts"`
}

// Exporter is the BigQuery-backed claim exporter. It holds a shared client to
// avoid creating a new connection per export.
type Exporter struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	sid       *shortid.Shortid
}

// NewExporter creates an exporter with a shared BigQuery client.
func NewExporter(ctx context.Context, projectID, datasetID string) (*Exporter, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewExporter: creating client: %w", err)
	}

	sid, err := shortid.New(1, shortid.DefaultABC, uint64(time.Now().UnixNano()))
	if err != nil {
		return nil, fmt.Errorf("NewExporter: shortid source: %w", err)
	}

	return &Exporter{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		sid:       sid,
	}, nil
}

// Close closes the BigQuery client connection.
func (e *Exporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// ExportClaims streams claim records into the claims table. ExportRef is a
// short token the ledger side can quote in support conversations instead of
// the full UUID chain.
func (e *Exporter) ExportClaims(ctx context.Context, records []domain.ClaimRecord) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now()
	rows := make([]*ClaimRow, 0, len(records))
	for _, record := range records {
		ref, err := e.sid.Generate()
		if err != nil {
			return fmt.Errorf("ExportClaims: generating export ref: %w", err)
		}
		rows = append(rows, &ClaimRow{
			ClaimID:         record.MovementID + ":" + record.StatementLineID,
			ExportRef:       ref,
			TenantID:        record.TenantID,
			StatementID:     record.StatementID,
			StatementLineID: record.StatementLineID,
			MovementID:      record.MovementID,
			MovementKind:    string(record.MovementKind),
			Manual:          record.Manual,
			MatchedTS:       record.MatchedAt,
			ExportedTS:      now,
		})
	}

	table := e.client.DatasetInProject(e.projectID, e.datasetID).Table(claimsTable)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("ExportClaims: inserting rows: %w", err)
	}
	return nil
}

// ExportResult streams one matching-run summary into the runs table.
func (e *Exporter) ExportResult(ctx context.Context, runID, tenantID string, result domain.ReconciliationResult) error {
	row := &ResultRow{
		RunID:           runID,
		TenantID:        tenantID,
		StatementID:     result.StatementID,
		TotalLines:      int64(result.TotalLines),
		MatchedLines:    int64(result.MatchedLines),
		MatchPercentage: result.MatchPercentage,
		NewMatches:      int64(result.NewMatches),
		FinishedTS:      time.Now(),
	}

	table := e.client.DatasetInProject(e.projectID, e.datasetID).Table(resultsTable)
	if err := table.Inserter().Put(ctx, []*ResultRow{row}); err != nil {
		return fmt.Errorf("ExportResult: inserting row: %w", err)
	}
	return nil
}
