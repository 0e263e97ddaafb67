package repository

import (
	"context"
	"time"

	"gymhub/api/internal/models"
)

type MFARepository struct {
	db DBTX
}

func NewMFARepository(db DBTX) *MFARepository {
	return &MFARepository{db: db}
}

func (r *MFARepository) Get(ctx context.Context, userID string) (models.MFACredential, error) {
	const query = `
		SELECT user_id, secret, enabled, enabled_at, created_at, updated_at
		FROM mfa_credentials WHERE user_id = $1
	`

	var cred models.MFACredential
	if err := r.db.QueryRow(ctx, query, userID).Scan(
		&cred.UserID,
		&cred.Secret,
		&cred.Enabled,
		&cred.EnabledAt,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	); err != nil {
		return models.MFACredential{}, mapReadError(err)
	}
	return cred, nil
}

func (r *MFARepository) SavePending(ctx context.Context, userID, secret string) error {
	const query = `
		INSERT INTO mfa_credentials (user_id, secret, enabled, created_at, updated_at)
		VALUES ($1, $2, FALSE, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET secret = EXCLUDED.secret, updated_at = NOW()
		WHERE mfa_credentials.enabled = FALSE
	`
	cmd, err := r.db.Exec(ctx, query, userID, secret)
	if err != nil {
		return mapWriteError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *MFARepository) Enable(ctx context.Context, userID string, at time.Time) error {
	const query = `
		UPDATE mfa_credentials
		SET enabled = TRUE, enabled_at = $2, updated_at = NOW()
		WHERE user_id = $1
	`
	cmd, err := r.db.Exec(ctx, query, userID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MFARepository) Delete(ctx context.Context, userID string) error {
	const query = `
		WITH codes AS (
			DELETE FROM mfa_backup_codes WHERE user_id = $1
		)
		DELETE FROM mfa_credentials WHERE user_id = $1
	`
	_, err := r.db.Exec(ctx, query, userID)
	return err
}

// ReplaceBackupCodes must run inside a transaction so the old set never
// coexists with the new one.
func (r *MFARepository) ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}
	const query = `
		INSERT INTO mfa_backup_codes (user_id, code_hash, created_at)
		SELECT $1, unnest($2::text[]), NOW()
	`
	_, err := r.db.Exec(ctx, query, userID, codeHashes)
	return mapWriteError(err)
}

func (r *MFARepository) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	const query = `DELETE FROM mfa_backup_codes WHERE user_id = $1 AND code_hash = $2`
	cmd, err := r.db.Exec(ctx, query, userID, codeHash)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *MFARepository) CountBackupCodes(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM mfa_backup_codes WHERE user_id = $1`
	var count int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
