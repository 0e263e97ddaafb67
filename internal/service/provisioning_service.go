package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"gymhub/api/internal/ids"
	"gymhub/api/internal/metrics"
	"gymhub/api/internal/models"
	"gymhub/api/internal/queue"
	"gymhub/api/internal/repository"
	"gymhub/api/internal/security"
)

const temporaryPasswordLength = 16

// ProvisioningService creates gym administrators and their gyms.
type ProvisioningService struct {
	store    repository.Store
	hasher   *security.PasswordHasher
	notifier Notifier
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewProvisioningService(
	store repository.Store,
	hasher *security.PasswordHasher,
	notifier Notifier,
	m *metrics.Metrics,
	log zerolog.Logger,
) *ProvisioningService {
	return &ProvisioningService{
		store:    store,
		hasher:   hasher,
		notifier: notifierOrNoop(notifier),
		metrics:  m,
		log:      log,
	}
}

type CreateAdminInput struct {
	Email       string
	Name        string
	PlanID      string
	RequestedBy string
}

type CreateAdminResult struct {
	Admin        models.User
	Subscription models.AdminSubscription
	Plan         models.SubscriptionPlan
	// TemporaryPassword is the only copy of the plaintext password.
	TemporaryPassword string
}

// CreateAdmin provisions an admin identity, its role binding and an active
// subscription in one transaction.
func (s *ProvisioningService) CreateAdmin(ctx context.Context, input CreateAdminInput) (result CreateAdminResult, err error) {
	defer func() { s.metrics.Provisioning("create_admin", err) }()

	email, err := normalizeEmail(input.Email)
	if err != nil {
		return CreateAdminResult{}, err
	}
	name, err := normalizeName(input.Name)
	if err != nil {
		return CreateAdminResult{}, err
	}

	password, err := security.GenerateTemporaryPassword(temporaryPasswordLength)
	if err != nil {
		return CreateAdminResult{}, err
	}
	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return CreateAdminResult{}, err
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := requireRole(ctx, tx, input.RequestedBy, models.RoleSuperAdmin, ErrNotSuperAdmin); err != nil {
			return err
		}

		if _, err := tx.Users().FindByEmail(ctx, email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		plan, err := tx.Subscriptions().GetPlan(ctx, input.PlanID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrPlanNotFound
			}
			return err
		}
		if !plan.IsActive {
			return ErrPlanInactive
		}

		admin := models.User{
			ID:           ids.New(),
			Email:        email,
			PasswordHash: passwordHash,
			DisplayName:  name,
			Status:       models.UserStatusActive,
		}
		if err := tx.Users().Create(ctx, admin); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrEmailTaken
			}
			return err
		}

		if err := tx.Users().CreateRoleBinding(ctx, models.RoleBinding{
			ID:        ids.New(),
			UserID:    admin.ID,
			Role:      models.RoleAdmin,
			IsPrimary: true,
		}); err != nil {
			return err
		}

		sub := models.AdminSubscription{
			ID:         ids.New(),
			AdminID:    admin.ID,
			PlanID:     plan.ID,
			AssignedBy: input.RequestedBy,
			Status:     models.SubscriptionActive,
		}
		if err := tx.Subscriptions().CreateAdminSubscription(ctx, sub); err != nil {
			return err
		}

		result = CreateAdminResult{Admin: admin, Subscription: sub, Plan: plan}
		return nil
	})
	if err != nil {
		return CreateAdminResult{}, err
	}

	result.Admin.PasswordHash = ""
	result.TemporaryPassword = password

	s.log.Info().
		Str("admin_id", result.Admin.ID).
		Str("plan_id", result.Plan.ID).
		Str("requested_by", input.RequestedBy).
		Msg("admin provisioned")

	s.publish(ctx, queue.Event{
		Type:      queue.EventAdminProvisioned,
		Recipient: result.Admin.Email,
		Data: map[string]string{
			"name":     result.Admin.DisplayName,
			"planName": result.Plan.Name,
		},
	})

	return result, nil
}

type CreateGymInput struct {
	AdminID string
	Name    string
}

// CreateGym creates the admin's single organization on the plan of their
// active subscription and scopes their admin bindings to it.
func (s *ProvisioningService) CreateGym(ctx context.Context, input CreateGymInput) (org models.Organization, err error) {
	defer func() { s.metrics.Provisioning("create_gym", err) }()

	name, err := normalizeName(input.Name)
	if err != nil {
		return models.Organization{}, err
	}

	var admin models.User
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := requireRole(ctx, tx, input.AdminID, models.RoleAdmin, ErrNotAdmin); err != nil {
			return err
		}

		if _, err := tx.Organizations().FindByOwner(ctx, input.AdminID); err == nil {
			return ErrGymAlreadyExists
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		sub, err := tx.Subscriptions().ActiveForAdmin(ctx, input.AdminID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNoActiveSubscription
			}
			return err
		}

		org = models.Organization{
			ID:      ids.New(),
			Name:    name,
			OwnerID: input.AdminID,
			PlanID:  sub.PlanID,
			Status:  models.OrganizationActive,
		}
		// The owner unique index decides concurrent attempts.
		if err := tx.Organizations().Create(ctx, org); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrGymAlreadyExists
			}
			return err
		}
		if org, err = tx.Organizations().FindByOwner(ctx, input.AdminID); err != nil {
			return err
		}

		if _, err := tx.Users().AttachOrganization(ctx, input.AdminID, models.RoleAdmin, org.ID); err != nil {
			return err
		}

		admin, err = tx.Users().GetByID(ctx, input.AdminID)
		return err
	})
	if err != nil {
		return models.Organization{}, err
	}

	s.log.Info().
		Str("organization_id", org.ID).
		Str("admin_id", input.AdminID).
		Str("plan_id", org.PlanID).
		Msg("gym created")

	s.publish(ctx, queue.Event{
		Type:      queue.EventGymCreated,
		Recipient: admin.Email,
		Data: map[string]string{
			"name":    admin.DisplayName,
			"gymName": org.Name,
		},
	})

	return org, nil
}

// BootstrapSuperAdmin creates a platform super admin with a chosen password.
func (s *ProvisioningService) BootstrapSuperAdmin(ctx context.Context, email, name, password string) (models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return models.User{}, err
	}
	name, err = normalizeName(name)
	if err != nil {
		return models.User{}, err
	}
	if err := validatePassword(password); err != nil {
		return models.User{}, err
	}
	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  name,
		Status:       models.UserStatusActive,
	}
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrEmailTaken
			}
			return err
		}
		return tx.Users().CreateRoleBinding(ctx, models.RoleBinding{
			ID:        ids.New(),
			UserID:    user.ID,
			Role:      models.RoleSuperAdmin,
			IsPrimary: true,
		})
	})
	if err != nil {
		return models.User{}, err
	}

	s.log.Info().Str("user_id", user.ID).Msg("super admin bootstrapped")
	user.PasswordHash = ""
	return user, nil
}

func (s *ProvisioningService) ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	return s.store.Subscriptions().ListPlans(ctx, true)
}

func (s *ProvisioningService) publish(ctx context.Context, event queue.Event) {
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("type", string(event.Type)).Msg("publish notification failed")
	}
}

func requireRole(ctx context.Context, store repository.Store, userID string, role models.Role, denied error) error {
	if userID == "" {
		return denied
	}
	bindings, err := store.Users().RoleBindings(ctx, userID)
	if err != nil {
		return err
	}
	if !models.HasRole(bindings, role) {
		return denied
	}
	return nil
}
