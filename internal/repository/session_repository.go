package repository

import (
	"context"
	"errors"
	"time"

	"gymhub/api/internal/models"
)

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session models.Session) error {
	const query = `
		INSERT INTO user_sessions (
			id, user_id, ip_address, user_agent, created_at, expires_at
		) VALUES (
			$1, $2, $3, $4, NOW(), $5
		)
	`

	_, err := r.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.IPAddress,
		session.UserAgent,
		session.ExpiresAt,
	)
	return mapWriteError(err)
}

func (r *SessionRepository) Consume(ctx context.Context, id, userID string) (models.Session, error) {
	const query = `
		UPDATE user_sessions
		SET rotated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND rotated_at IS NULL
		RETURNING id, user_id, ip_address, user_agent, created_at, expires_at, rotated_at
	`

	var session models.Session
	err := r.db.QueryRow(ctx, query, id, userID).Scan(
		&session.ID,
		&session.UserID,
		&session.IPAddress,
		&session.UserAgent,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.RotatedAt,
	)
	if err == nil {
		return session, nil
	}
	if err = mapReadError(err); !errors.Is(err, ErrNotFound) {
		return models.Session{}, err
	}

	const rotatedQuery = `
		SELECT EXISTS (
			SELECT 1 FROM user_sessions
			WHERE id = $1 AND user_id = $2 AND rotated_at IS NOT NULL
		)
	`
	var rotated bool
	if err := r.db.QueryRow(ctx, rotatedQuery, id, userID).Scan(&rotated); err != nil {
		return models.Session{}, err
	}
	if rotated {
		return models.Session{}, ErrSessionRotated
	}
	return models.Session{}, ErrNotFound
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM user_sessions WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) error {
	const query = `DELETE FROM user_sessions WHERE user_id = $1`
	_, err := r.db.Exec(ctx, query, userID)
	return err
}

func (r *SessionRepository) DeleteOldest(ctx context.Context, userID string, keepLatest int) error {
	const query = `
		DELETE FROM user_sessions
		WHERE id IN (
			SELECT id FROM user_sessions
			WHERE user_id = $1 AND rotated_at IS NULL
			ORDER BY created_at DESC
			OFFSET $2
		)
	`
	_, err := r.db.Exec(ctx, query, userID, keepLatest)
	return err
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM user_sessions WHERE expires_at <= $1`
	cmd, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
