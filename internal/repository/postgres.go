package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gymhub/api/internal/database"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
)

type PGStore struct {
	pool *pgxpool.Pool
	db   DBTX
	inTx bool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool, db: pool}
}

func (s *PGStore) Users() UserStore                 { return NewUserRepository(s.db) }
func (s *PGStore) Sessions() SessionStore           { return NewSessionRepository(s.db) }
func (s *PGStore) Subscriptions() SubscriptionStore { return NewSubscriptionRepository(s.db) }
func (s *PGStore) Organizations() OrganizationStore { return NewOrganizationRepository(s.db) }
func (s *PGStore) MFA() MFAStore                    { return NewMFARepository(s.db) }

// WithTx joins the current transaction when called on a transactional store.
func (s *PGStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PGStore{pool: s.pool, db: tx, inTx: true})
	})
}

// mapWriteError translates constraint failures into ErrConflict.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure:
			return errors.Join(ErrConflict, err)
		}
	}
	return err
}

func mapReadError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
