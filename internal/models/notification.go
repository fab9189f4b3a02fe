package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification types raised by the order core
const (
	NotificationOrderStatus = "ORDER_STATUS"
	NotificationOrderSynced = "ORDER_SYNCED"
)

// Notification is a per-user message, persisted and pushed in real time
type Notification struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	UserID            uuid.UUID  `json:"user_id" db:"user_id"`
	Type              string     `json:"type" db:"type"`
	Title             string     `json:"title" db:"title"`
	Message           string     `json:"message" db:"message"`
	RelatedEntityType *string    `json:"related_entity_type" db:"related_entity_type"`
	RelatedEntityID   *uuid.UUID `json:"related_entity_id" db:"related_entity_id"`
	IsRead            bool       `json:"is_read" db:"is_read"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}
