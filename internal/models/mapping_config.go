package models

import (
	"time"

	"github.com/google/uuid"
)

// Dataset types understood by the mapping resolver
const (
	DatasetClients             = "clients"
	DatasetArticles            = "articles"
	DatasetOrdersHeader        = "orders-header"
	DatasetOrdersDetail        = "orders-detail"
	DatasetDeliveryNotesHeader = "delivery-notes-header"
	DatasetDeliveryNotesDetail = "delivery-notes-detail"
	DatasetInvoicesHeader      = "invoices-header"
	DatasetInvoicesDetail      = "invoices-detail"
)

// MappingConfig is an administrator override for one dataset type
type MappingConfig struct {
	ID             uuid.UUID         `json:"id" db:"id"`
	MappingType    string            `json:"mapping_type" db:"mapping_type"`
	DMSTableName   string            `json:"dms_table_name" db:"dms_table_name"`
	ColumnMappings map[string]string `json:"column_mappings" db:"column_mappings"`
	FilterClause   *string           `json:"filter_clause" db:"filter_clause"`
	IsActive       bool              `json:"is_active" db:"is_active"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}

// ResolvedMapping is what callers compose statements from
type ResolvedMapping struct {
	MappingType string            `json:"mapping_type"`
	TableName   string            `json:"table_name"`
	Columns     map[string]string `json:"columns"`
	Filter      *string           `json:"filter,omitempty"`
	IsDefault   bool              `json:"is_default"`
}

// Physical returns the mapped column for a logical field, or "" when unmapped
func (m *ResolvedMapping) Physical(logical string) string {
	if m == nil {
		return ""
	}
	return m.Columns[logical]
}
