package models

import (
	"time"

	"github.com/google/uuid"
)

// JSONB is a free-form JSON object column
type JSONB map[string]interface{}

// AuditLog represents an audit log entry for tracking order changes
type AuditLog struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	EntityType string     `json:"entity_type" db:"entity_type"`
	EntityID   string     `json:"entity_id" db:"entity_id"`
	Action     string     `json:"action" db:"action"`
	OldValues  JSONB      `json:"old_values" db:"old_values"`
	NewValues  JSONB      `json:"new_values" db:"new_values"`
	ChangedBy  *uuid.UUID `json:"changed_by" db:"changed_by"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Action constants for audit logs
const (
	ActionOrderCreate       = "ORDER_CREATE"
	ActionOrderStatus       = "ORDER_STATUS_CHANGE"
	ActionOrderItemsReplace = "ORDER_ITEMS_REPLACE"
	ActionOrderExport       = "ORDER_EXPORT"
	ActionOrderShip         = "ORDER_SHIP"
	ActionOrderDelete       = "ORDER_DELETE"
	ActionOrderReconcile    = "ORDER_RECONCILE"
	ActionMappingUpsert     = "MAPPING_UPSERT"
	ActionMappingRemove     = "MAPPING_REMOVE"
)

// AuditLogFilters represents filters for querying audit logs
type AuditLogFilters struct {
	EntityType *string    `json:"entity_type"`
	EntityID   *string    `json:"entity_id"`
	Action     *string    `json:"action"`
	ChangedBy  *uuid.UUID `json:"changed_by"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
}
