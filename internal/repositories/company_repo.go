package repositories

import (
	"context"
	"errors"

	"orderbridge/internal/common"
	"orderbridge/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type CompanyRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
}

type companyRepo struct {
	db DB
}

func NewCompanyRepo(db DB) CompanyRepository {
	return &companyRepo{db: db}
}

func (r *companyRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	company := &models.Company{}
	query := `
		SELECT id, name, external_customer_code, created_at, updated_at
		FROM companies
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&company.ID, &company.Name, &company.ExternalCustomerCode, &company.CreatedAt, &company.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NotFound("get company", "company")
	}
	if err != nil {
		return nil, err
	}
	return company, nil
}
