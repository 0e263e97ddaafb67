package repository

import (
	"context"

	"gymhub/api/internal/models"
)

type OrganizationRepository struct {
	db DBTX
}

func NewOrganizationRepository(db DBTX) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create fails with ErrConflict when the owner already has an organization.
func (r *OrganizationRepository) Create(ctx context.Context, org models.Organization) error {
	const query = `
		INSERT INTO organizations (
			id, name, owner_id, plan_id, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, NOW(), NOW()
		)
	`
	_, err := r.db.Exec(ctx, query, org.ID, org.Name, org.OwnerID, org.PlanID, org.Status)
	return mapWriteError(err)
}

func (r *OrganizationRepository) FindByOwner(ctx context.Context, ownerID string) (models.Organization, error) {
	const query = `
		SELECT id, name, owner_id, plan_id, status, created_at, updated_at
		FROM organizations WHERE owner_id = $1
	`

	var org models.Organization
	if err := r.db.QueryRow(ctx, query, ownerID).Scan(
		&org.ID,
		&org.Name,
		&org.OwnerID,
		&org.PlanID,
		&org.Status,
		&org.CreatedAt,
		&org.UpdatedAt,
	); err != nil {
		return models.Organization{}, mapReadError(err)
	}
	return org, nil
}
