package models

import (
	"time"

	"github.com/google/uuid"
)

type Company struct {
	ID                   uuid.UUID `json:"id" db:"id"`
	Name                 string    `json:"name" db:"name"`
	ExternalCustomerCode *string   `json:"external_customer_code" db:"external_customer_code"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}
