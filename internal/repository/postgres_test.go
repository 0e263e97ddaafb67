package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapWriteError(t *testing.T) {
	assert.NoError(t, mapWriteError(nil))

	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "organizations_owner_key"})
	assert.ErrorIs(t, mapWriteError(unique), ErrConflict)

	serialization := &pgconn.PgError{Code: pgSerializationFailure}
	assert.ErrorIs(t, mapWriteError(serialization), ErrConflict)

	fk := &pgconn.PgError{Code: "23503"}
	assert.NotErrorIs(t, mapWriteError(fk), ErrConflict)

	other := errors.New("connection reset")
	assert.Equal(t, other, mapWriteError(other))
}

func TestMapReadError(t *testing.T) {
	assert.ErrorIs(t, mapReadError(pgx.ErrNoRows), ErrNotFound)
	other := errors.New("timeout")
	assert.Equal(t, other, mapReadError(other))
}

// scriptedDB answers QueryRow calls in order with single column rows.
type scriptedDB struct {
	rows    []scriptedRow
	queries []string
}

type scriptedRow struct {
	value any
	err   error
}

func (r scriptedRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if b, ok := dest[0].(*bool); ok {
		*b = r.value.(bool)
	}
	return nil
}

func (db *scriptedDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("unexpected exec")
}

func (db *scriptedDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected query")
}

func (db *scriptedDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	db.queries = append(db.queries, sql)
	row := db.rows[0]
	db.rows = db.rows[1:]
	return row
}

func TestSessionConsumeTellsRotatedFromMissing(t *testing.T) {
	ctx := context.Background()

	rotated := &scriptedDB{rows: []scriptedRow{{err: pgx.ErrNoRows}, {value: true}}}
	_, err := NewSessionRepository(rotated).Consume(ctx, "jti-1", "u1")
	assert.ErrorIs(t, err, ErrSessionRotated)
	require.Len(t, rotated.queries, 2)
	assert.Contains(t, rotated.queries[0], "rotated_at IS NULL")

	missing := &scriptedDB{rows: []scriptedRow{{err: pgx.ErrNoRows}, {value: false}}}
	_, err = NewSessionRepository(missing).Consume(ctx, "jti-2", "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	broken := errors.New("conn reset")
	failing := &scriptedDB{rows: []scriptedRow{{err: broken}}}
	_, err = NewSessionRepository(failing).Consume(ctx, "jti-3", "u1")
	assert.ErrorIs(t, err, broken)
	assert.Len(t, failing.queries, 1)
}

func TestPGStoreRepositories(t *testing.T) {
	store := NewPGStore(nil)
	assert.IsType(t, &UserRepository{}, store.Users())
	assert.IsType(t, &SessionRepository{}, store.Sessions())
	assert.IsType(t, &SubscriptionRepository{}, store.Subscriptions())
	assert.IsType(t, &OrganizationRepository{}, store.Organizations())
	assert.IsType(t, &MFARepository{}, store.MFA())
}
