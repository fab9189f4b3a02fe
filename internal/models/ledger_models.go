package models

import (
	"time"
)

// LedgerColumn is one column confirmed by live schema introspection
type LedgerColumn struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	IsNullable bool   `json:"is_nullable"`
}

// PreviewRequest asks for a read-only sample of a mapped table
type PreviewRequest struct {
	MappingType string            `json:"mapping_type,omitempty"` // preview a resolved mapping, filter included
	TableName   string            `json:"table_name,omitempty"`
	Columns     map[string]string `json:"columns,omitempty"`
	Limit       int               `json:"limit"`
}

// PreviewResult holds sampled rows keyed by logical field
type PreviewResult struct {
	TableName string                   `json:"table_name"`
	Rows      []map[string]interface{} `json:"rows"`
	Derived   []string                 `json:"derived,omitempty"`
	Skipped   []string                 `json:"skipped,omitempty"`
}

// ExportResult reports the outcome of pushing one order to the ledger
type ExportResult struct {
	Success      bool   `json:"success"`
	ExternalRef  string `json:"external_ref,omitempty"`
	Error        string `json:"error,omitempty"`
	LinesWritten int    `json:"lines_written"`
}

// Sync run statuses
const (
	SyncStatusSuccess = "SUCCESS"
	SyncStatusPartial = "PARTIAL"
	SyncStatusFailed  = "FAILED"
)

// SyncResult reports one reconciliation run
type SyncResult struct {
	SyncedCount int       `json:"synced_count"`
	Errors      []string  `json:"errors"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Complete sets the run status from what was collected
func (r *SyncResult) Complete(finishedAt time.Time) {
	r.FinishedAt = finishedAt
	switch {
	case len(r.Errors) == 0:
		r.Status = SyncStatusSuccess
	case r.SyncedCount > 0:
		r.Status = SyncStatusPartial
	default:
		r.Status = SyncStatusFailed
	}
}
