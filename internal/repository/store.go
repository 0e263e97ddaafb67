package repository

import (
	"context"
	"errors"
	"time"

	"gymhub/api/internal/models"
)

var (
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict reports a violated uniqueness guarantee, including one lost
	// to a concurrent writer.
	ErrConflict = errors.New("repository: conflict")
	// ErrSessionRotated reports a refresh session that was already exchanged.
	ErrSessionRotated = errors.New("repository: session already rotated")
)

// Store groups the persistence operations of the service. A Store handed to
// a WithTx callback runs every call inside that transaction.
type Store interface {
	Users() UserStore
	Sessions() SessionStore
	Subscriptions() SubscriptionStore
	Organizations() OrganizationStore
	MFA() MFAStore
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	CreateRoleBinding(ctx context.Context, binding models.RoleBinding) error
	// RoleBindings returns the primary binding first, then the rest oldest
	// first.
	RoleBindings(ctx context.Context, userID string) ([]models.RoleBinding, error)
	// AttachOrganization scopes the user's unscoped bindings of role to orgID
	// and reports how many were updated.
	AttachOrganization(ctx context.Context, userID string, role models.Role, orgID string) (int64, error)
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	// Consume marks the session rotated and returns it. Only one caller can
	// consume a given session; later calls get ErrSessionRotated. Unknown
	// sessions, including evicted ones, give ErrNotFound.
	Consume(ctx context.Context, id, userID string) (models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
	// DeleteOldest keeps the newest keepLatest live sessions of the user.
	// Rotated sessions are left for DeleteExpired.
	DeleteOldest(ctx context.Context, userID string, keepLatest int) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type SubscriptionStore interface {
	GetPlan(ctx context.Context, id string) (models.SubscriptionPlan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]models.SubscriptionPlan, error)
	CreateAdminSubscription(ctx context.Context, sub models.AdminSubscription) error
	ActiveForAdmin(ctx context.Context, adminID string) (models.AdminSubscription, error)
}

type OrganizationStore interface {
	Create(ctx context.Context, org models.Organization) error
	FindByOwner(ctx context.Context, ownerID string) (models.Organization, error)
}

type MFAStore interface {
	Get(ctx context.Context, userID string) (models.MFACredential, error)
	// SavePending stores a not yet enabled secret. It fails with ErrConflict
	// when MFA is already enabled for the user.
	SavePending(ctx context.Context, userID, secret string) error
	Enable(ctx context.Context, userID string, at time.Time) error
	// Delete removes the credential together with every backup code.
	Delete(ctx context.Context, userID string) error
	ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error
	// ConsumeBackupCode removes the matching code and reports whether one
	// existed. The check and the removal are a single operation.
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error)
	CountBackupCodes(ctx context.Context, userID string) (int, error)
}
