package repository

import (
	"context"
	"strings"

	"gymhub/api/internal/models"
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, display_name, status, email_verified, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, email, password_hash, display_name, status, email_verified, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW(), NOW()
		)
	`

	_, err := r.db.Exec(ctx, query,
		user.ID,
		strings.ToLower(user.Email),
		user.PasswordHash,
		user.DisplayName,
		user.Status,
		user.EmailVerified,
	)
	return mapWriteError(err)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.Status,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return models.User{}, mapReadError(err)
	}
	return user, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) CreateRoleBinding(ctx context.Context, b models.RoleBinding) error {
	const query = `
		INSERT INTO role_bindings (
			id, user_id, role, organization_id, branch_id, team_role, is_primary, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NOW()
		)
	`
	_, err := r.db.Exec(ctx, query,
		b.ID,
		b.UserID,
		b.Role,
		b.OrganizationID,
		b.BranchID,
		b.TeamRole,
		b.IsPrimary,
	)
	return mapWriteError(err)
}

func (r *UserRepository) RoleBindings(ctx context.Context, userID string) ([]models.RoleBinding, error) {
	const query = `
		SELECT id, user_id, role, organization_id, branch_id, team_role, is_primary, created_at
		FROM role_bindings
		WHERE user_id = $1
		ORDER BY is_primary DESC, created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []models.RoleBinding
	for rows.Next() {
		var b models.RoleBinding
		if err := rows.Scan(
			&b.ID,
			&b.UserID,
			&b.Role,
			&b.OrganizationID,
			&b.BranchID,
			&b.TeamRole,
			&b.IsPrimary,
			&b.CreatedAt,
		); err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

func (r *UserRepository) AttachOrganization(ctx context.Context, userID string, role models.Role, orgID string) (int64, error) {
	const query = `
		UPDATE role_bindings
		SET organization_id = $3
		WHERE user_id = $1 AND role = $2 AND organization_id IS NULL
	`
	cmd, err := r.db.Exec(ctx, query, userID, role, orgID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
