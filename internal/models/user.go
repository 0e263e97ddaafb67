package models

import "time"

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleStaff      Role = "staff"
	RoleTrainer    Role = "trainer"
	RoleMember     Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleManager, RoleStaff, RoleTrainer, RoleMember:
		return true
	}
	return false
}

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

// User is the platform identity. PasswordHash is empty for identities that
// only sign in through an external provider.
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	DisplayName   string
	Status        UserStatus
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (u User) IsActive() bool {
	return u.Status == UserStatusActive
}

// RoleBinding grants a role to a user, optionally scoped to an organization
// and branch.
type RoleBinding struct {
	ID             string
	UserID         string
	Role           Role
	OrganizationID *string
	BranchID       *string
	TeamRole       *string
	IsPrimary      bool
	CreatedAt      time.Time
}

// PrimaryBinding returns the binding flagged primary. Bindings are expected
// in store order (primary first, then oldest), so the first entry is the
// fallback when none carries the flag.
func PrimaryBinding(bindings []RoleBinding) (RoleBinding, bool) {
	if len(bindings) == 0 {
		return RoleBinding{}, false
	}
	for _, b := range bindings {
		if b.IsPrimary {
			return b, true
		}
	}
	return bindings[0], true
}

func HasRole(bindings []RoleBinding, role Role) bool {
	for _, b := range bindings {
		if b.Role == role {
			return true
		}
	}
	return false
}
