package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"gymhub/api/internal/models"
)

type SubscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) GetPlan(ctx context.Context, id string) (models.SubscriptionPlan, error) {
	const query = `
		SELECT id, name, limits, is_active, created_at
		FROM subscription_plans WHERE id = $1
	`
	return scanPlan(r.db.QueryRow(ctx, query, id))
}

func (r *SubscriptionRepository) ListPlans(ctx context.Context, activeOnly bool) ([]models.SubscriptionPlan, error) {
	const query = `
		SELECT id, name, limits, is_active, created_at
		FROM subscription_plans
		WHERE is_active OR NOT $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []models.SubscriptionPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func scanPlan(row interface{ Scan(...any) error }) (models.SubscriptionPlan, error) {
	var (
		plan   models.SubscriptionPlan
		limits []byte
	)
	if err := row.Scan(&plan.ID, &plan.Name, &limits, &plan.IsActive, &plan.CreatedAt); err != nil {
		return models.SubscriptionPlan{}, mapReadError(err)
	}
	if len(limits) > 0 {
		if err := json.Unmarshal(limits, &plan.Limits); err != nil {
			return models.SubscriptionPlan{}, fmt.Errorf("decode plan limits: %w", err)
		}
	}
	return plan, nil
}

func (r *SubscriptionRepository) CreateAdminSubscription(ctx context.Context, sub models.AdminSubscription) error {
	const query = `
		INSERT INTO admin_subscriptions (
			id, admin_id, plan_id, assigned_by, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, NOW(), NOW()
		)
	`
	_, err := r.db.Exec(ctx, query, sub.ID, sub.AdminID, sub.PlanID, sub.AssignedBy, sub.Status)
	return mapWriteError(err)
}

func (r *SubscriptionRepository) ActiveForAdmin(ctx context.Context, adminID string) (models.AdminSubscription, error) {
	const query = `
		SELECT id, admin_id, plan_id, assigned_by, status, created_at, updated_at
		FROM admin_subscriptions
		WHERE admin_id = $1 AND status = 'active'
	`

	var sub models.AdminSubscription
	if err := r.db.QueryRow(ctx, query, adminID).Scan(
		&sub.ID,
		&sub.AdminID,
		&sub.PlanID,
		&sub.AssignedBy,
		&sub.Status,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	); err != nil {
		return models.AdminSubscription{}, mapReadError(err)
	}
	return sub, nil
}
