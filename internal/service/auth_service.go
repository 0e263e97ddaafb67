package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"gymhub/api/internal/config"
	"gymhub/api/internal/ids"
	"gymhub/api/internal/metrics"
	"gymhub/api/internal/models"
	"gymhub/api/internal/queue"
	"gymhub/api/internal/repository"
	"gymhub/api/internal/security"
)

type AuthService struct {
	store       repository.Store
	hasher      *security.PasswordHasher
	tokens      *security.TokenIssuer
	mfa         *MFAService
	notifier    Notifier
	metrics     *metrics.Metrics
	maxSessions int
	log         zerolog.Logger

	// dummyHash keeps unknown-email logins as slow as wrong-password ones.
	dummyHash string
}

func NewAuthService(
	store repository.Store,
	hasher *security.PasswordHasher,
	tokens *security.TokenIssuer,
	mfa *MFAService,
	notifier Notifier,
	m *metrics.Metrics,
	cfg config.SecurityConfig,
	log zerolog.Logger,
) *AuthService {
	dummy, err := hasher.Hash(ids.New())
	if err != nil {
		log.Warn().Err(err).Msg("precompute dummy password hash failed")
	}
	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 10
	}
	return &AuthService{
		store:       store,
		hasher:      hasher,
		tokens:      tokens,
		mfa:         mfa,
		notifier:    notifierOrNoop(notifier),
		metrics:     m,
		maxSessions: maxSessions,
		log:         log,
		dummyHash:   dummy,
	}
}

type AuthResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             models.User
	Identity         security.Identity
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	IPAddress   string
	UserAgent   string
}

// Register creates a self-service member account and signs it in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return AuthResult{}, err
	}
	if err := validatePassword(input.Password); err != nil {
		return AuthResult{}, err
	}
	name, err := normalizeName(input.DisplayName)
	if err != nil {
		return AuthResult{}, err
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return AuthResult{}, err
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
			Role:      models.RoleMember,
			IsPrimary: true,
		})
	})
	if err != nil {
		s.metrics.AuthAttempt("register", "failure")
		return AuthResult{}, err
	}

	s.metrics.AuthAttempt("register", "success")
	s.log.Info().Str("user_id", user.ID).Msg("member registered")
	return s.issueSession(ctx, user, input.IPAddress, input.UserAgent)
}

type LoginInput struct {
	Email      string
	Password   string
	MFACode    string
	BackupCode string
	IPAddress  string
	UserAgent  string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	result, err := s.login(ctx, input)
	switch {
	case err == nil:
		s.metrics.AuthAttempt("login", "success")
	case errors.Is(err, ErrMFARequired):
		s.metrics.AuthAttempt("login", "mfa_required")
	default:
		s.metrics.AuthAttempt("login", "failure")
	}
	return result, err
}

func (s *AuthService) login(ctx context.Context, input LoginInput) (AuthResult, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}

	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.Verify(input.Password, s.dummyHash)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if user.PasswordHash == "" || !s.hasher.Verify(input.Password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}
	if !user.IsActive() {
		return AuthResult{}, ErrAccountDisabled
	}

	if err := s.checkSecondFactor(ctx, user.ID, input.MFACode, input.BackupCode); err != nil {
		return AuthResult{}, err
	}

	return s.issueSession(ctx, user, input.IPAddress, input.UserAgent)
}

func (s *AuthService) checkSecondFactor(ctx context.Context, userID, code, backupCode string) error {
	cred, err := s.store.MFA().Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !cred.Enabled {
		return nil
	}

	var ok bool
	switch {
	case code != "":
		ok, err = s.mfa.Verify(ctx, userID, code)
	case backupCode != "":
		ok, err = s.mfa.VerifyBackupCode(ctx, userID, backupCode)
	default:
		return ErrMFARequired
	}
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}

type RefreshInput struct {
	RefreshToken string
	IPAddress    string
	UserAgent    string
}

// Refresh rotates a refresh token. Each refresh token can be redeemed once;
// presenting a redeemed token revokes every session of its owner.
func (s *AuthService) Refresh(ctx context.Context, input RefreshInput) (AuthResult, error) {
	claims, err := s.tokens.VerifyRefresh(input.RefreshToken)
	if err != nil {
		s.metrics.AuthAttempt("refresh", "failure")
		return AuthResult{}, err
	}

	if _, err := s.store.Sessions().Consume(ctx, claims.ID, claims.UserID); err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionRotated):
			// A rotated token came back: the whole token family is suspect.
			s.log.Warn().Str("user_id", claims.UserID).Str("token_id", claims.ID).Msg("refresh token reuse detected")
			if err := s.store.Sessions().DeleteByUser(ctx, claims.UserID); err != nil {
				s.log.Error().Err(err).Str("user_id", claims.UserID).Msg("revoke sessions failed")
			}
			s.metrics.AuthAttempt("refresh", "reuse")
			return AuthResult{}, security.ErrInvalidToken
		case errors.Is(err, repository.ErrNotFound):
			// Evicted, expired or logged out.
			s.log.Debug().Str("user_id", claims.UserID).Str("token_id", claims.ID).Msg("refresh session not found")
			s.metrics.AuthAttempt("refresh", "failure")
			return AuthResult{}, security.ErrInvalidToken
		}
		return AuthResult{}, err
	}

	user, err := s.store.Users().GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AuthResult{}, security.ErrInvalidToken
		}
		return AuthResult{}, err
	}
	if !user.IsActive() {
		return AuthResult{}, ErrAccountDisabled
	}

	s.metrics.AuthAttempt("refresh", "success")
	return s.issueSession(ctx, user, input.IPAddress, input.UserAgent)
}

// Logout revokes the session behind a refresh token. Unknown or already
// revoked sessions are not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return err
	}
	if err := s.store.Sessions().Delete(ctx, claims.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

type ChangePasswordInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
}

// ChangePassword replaces the password and signs out every session.
func (s *AuthService) ChangePassword(ctx context.Context, input ChangePasswordInput) error {
	user, err := s.store.Users().GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.PasswordHash == "" || !s.hasher.Verify(input.CurrentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := validatePassword(input.NewPassword); err != nil {
		return err
	}

	passwordHash, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		return err
	}
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Users().UpdatePassword(ctx, user.ID, passwordHash); err != nil {
			return err
		}
		return tx.Sessions().DeleteByUser(ctx, user.ID)
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("user_id", user.ID).Msg("password changed")
	if err := s.notifier.Notify(ctx, queue.Event{
		Type:      queue.EventPasswordChanged,
		Recipient: user.Email,
		Data:      map[string]string{"name": user.DisplayName},
	}); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("publish notification failed")
	}
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (models.User, []models.RoleBinding, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.User{}, nil, ErrUserNotFound
		}
		return models.User{}, nil, err
	}
	bindings, err := s.store.Users().RoleBindings(ctx, userID)
	if err != nil {
		return models.User{}, nil, err
	}
	user.PasswordHash = ""
	return user, bindings, nil
}

func (s *AuthService) issueSession(ctx context.Context, user models.User, ipAddress, userAgent string) (AuthResult, error) {
	bindings, err := s.store.Users().RoleBindings(ctx, user.ID)
	if err != nil {
		return AuthResult{}, err
	}
	primary, ok := models.PrimaryBinding(bindings)
	if !ok {
		return AuthResult{}, ErrNoRoleAssigned
	}
	identity := IdentityFor(user, primary)

	access, err := s.tokens.IssueAccess(identity)
	if err != nil {
		return AuthResult{}, err
	}
	refresh, err := s.tokens.IssueRefresh(identity)
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.store.Sessions().Create(ctx, models.Session{
		ID:        refresh.ID,
		UserID:    user.ID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: refresh.ExpiresAt,
	}); err != nil {
		return AuthResult{}, err
	}

	if err := s.store.Sessions().DeleteOldest(ctx, user.ID, s.maxSessions); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("enforce session limit failed")
	}

	user.PasswordHash = ""
	return AuthResult{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
		User:             user,
		Identity:         identity,
	}, nil
}

// IdentityFor builds the token identity of user acting through binding.
func IdentityFor(user models.User, binding models.RoleBinding) security.Identity {
	return security.Identity{
		UserID:   user.ID,
		Email:    user.Email,
		Role:     binding.Role,
		TeamRole: deref(binding.TeamRole),
		BranchID: deref(binding.BranchID),
		GymID:    deref(binding.OrganizationID),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
