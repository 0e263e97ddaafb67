package service

import "gymhub/api/internal/apperrors"

var (
	ErrInvalidCredentials = apperrors.Unauthenticated("invalid credentials")
	ErrMFARequired        = apperrors.Unauthenticated("mfa_required")
	ErrAccountDisabled    = apperrors.Forbidden("account disabled")
	ErrNoRoleAssigned     = apperrors.Forbidden("no role assigned")
	ErrEmailTaken         = apperrors.Conflict("email already registered")
	ErrWeakPassword       = apperrors.Invalid("password must be between 8 and 128 characters")
	ErrInvalidEmail       = apperrors.Invalid("a valid email is required")
	ErrUserNotFound       = apperrors.NotFound("user not found")

	ErrMFANotConfigured  = apperrors.Invalid("MFA not configured")
	ErrMFAAlreadyEnabled = apperrors.Conflict("MFA already enabled")

	ErrNotSuperAdmin        = apperrors.Forbidden("only super admins can create admins")
	ErrNotAdmin             = apperrors.Forbidden("only admins can create a gym")
	ErrNameRequired         = apperrors.Invalid("name is required")
	ErrPlanNotFound         = apperrors.NotFound("subscription plan not found")
	ErrPlanInactive         = apperrors.Invalid("subscription plan is inactive")
	ErrGymAlreadyExists     = apperrors.Conflict("admin already owns a gym")
	ErrNoActiveSubscription = apperrors.Forbidden("no active subscription")
)
