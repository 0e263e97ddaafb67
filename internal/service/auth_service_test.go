package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymhub/api/internal/apperrors"
	"gymhub/api/internal/config"
	"gymhub/api/internal/ids"
	"gymhub/api/internal/models"
	"gymhub/api/internal/queue"
	"gymhub/api/internal/repository"
	"gymhub/api/internal/security"
)

type authFixture struct {
	store    *repository.MemoryStore
	hasher   *security.PasswordHasher
	tokens   *security.TokenIssuer
	clock    *testClock
	notifier *recordingNotifier
	mfa      *MFAService
	svc      *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		store:    newTestStore(),
		hasher:   newTestHasher(t),
		tokens:   newTestTokens(t),
		clock:    newTestClock(),
		notifier: &recordingNotifier{},
	}
	f.mfa = NewMFAService(f.store, testMFAConfig, nopLogger(), WithMFAClock(f.clock.Now))
	f.svc = NewAuthService(f.store, f.hasher, f.tokens, f.mfa, f.notifier, nil,
		config.SecurityConfig{MaxSessions: 3}, nopLogger())
	return f
}

// sessionCount drains every session of the store and reports how many existed.
func sessionCount(t *testing.T, store repository.Store) int64 {
	t.Helper()
	n, err := store.Sessions().DeleteExpired(context.Background(), time.Now().Add(365*24*time.Hour))
	require.NoError(t, err)
	return n
}

func TestRegisterThenLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, RegisterInput{
		Email:       "Member@Example.com",
		Password:    "correct horse",
		DisplayName: "Sam Member",
	})
	require.NoError(t, err)
	assert.Equal(t, "member@example.com", reg.User.Email)
	assert.Empty(t, reg.User.PasswordHash)
	assert.Equal(t, models.RoleMember, reg.Identity.Role)

	claims, err := f.tokens.VerifyAccess(reg.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)
	assert.Equal(t, models.RoleMember, claims.Role)

	login, err := f.svc.Login(ctx, LoginInput{Email: "member@example.com", Password: "correct horse", IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)
	assert.NotEqual(t, reg.RefreshToken, login.RefreshToken)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "member@example.com", Password: "another pass", DisplayName: "Dup"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "short@example.com", Password: "short", DisplayName: "Short"})
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	seedUser(t, f.store, f.hasher, "staff@example.com", "staff-password", models.RoleStaff)

	require.NoError(t, f.store.Users().Create(ctx, models.User{
		ID:           ids.New(),
		Email:        "suspended@example.com",
		PasswordHash: mustHash(t, f.hasher, "suspended-password"),
		DisplayName:  "Suspended",
		Status:       models.UserStatusSuspended,
	}))

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "wrong password", email: "staff@example.com", password: "nope-nope", wantErr: ErrInvalidCredentials},
		{name: "unknown email", email: "ghost@example.com", password: "staff-password", wantErr: ErrInvalidCredentials},
		{name: "malformed email", email: "not-an-email", password: "staff-password", wantErr: ErrInvalidCredentials},
		{name: "suspended account", email: "suspended@example.com", password: "suspended-password", wantErr: ErrAccountDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(ctx, LoginInput{Email: tt.email, Password: tt.password})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Zero(t, sessionCount(t, f.store))
}

func TestLoginWithoutRoleBinding(t *testing.T) {
	f := newAuthFixture(t)
	require.NoError(t, f.store.Users().Create(context.Background(), models.User{
		ID:           ids.New(),
		Email:        "nobody@example.com",
		PasswordHash: mustHash(t, f.hasher, "nobody-password"),
		DisplayName:  "Nobody",
		Status:       models.UserStatusActive,
	}))

	_, err := f.svc.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "nobody-password"})
	assert.ErrorIs(t, err, ErrNoRoleAssigned)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestLoginRequiresSecondFactorWhenEnabled(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := seedUser(t, f.store, f.hasher, "coach@example.com", "coach-password", models.RoleTrainer)

	setup, err := f.mfa.GenerateSecret(ctx, user.ID)
	require.NoError(t, err)

	// A pending secret does not gate login.
	_, err = f.svc.Login(ctx, LoginInput{Email: "coach@example.com", Password: "coach-password"})
	require.NoError(t, err)

	ok, err := f.mfa.VerifyAndEnable(ctx, user.ID, totpCode(t, setup.Secret, f.clock.Now()))
	require.NoError(t, err)
	require.True(t, ok)
	codes, err := f.mfa.GenerateBackupCodes(ctx, user.ID)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginInput{Email: "coach@example.com", Password: "coach-password"})
	assert.ErrorIs(t, err, ErrMFARequired)

	_, err = f.svc.Login(ctx, LoginInput{Email: "coach@example.com", Password: "coach-password", MFACode: "123456x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	f.clock.Advance(30 * time.Second)
	res, err := f.svc.Login(ctx, LoginInput{
		Email:    "coach@example.com",
		Password: "coach-password",
		MFACode:  totpCode(t, setup.Secret, f.clock.Now()),
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleTrainer, res.Identity.Role)

	_, err = f.svc.Login(ctx, LoginInput{Email: "coach@example.com", Password: "coach-password", BackupCode: codes[0]})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginInput{Email: "coach@example.com", Password: "coach-password", BackupCode: codes[0]})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// The second factor is checked only after the password.
	_, err = f.svc.Login(ctx, LoginInput{Email: "coach@example.com", Password: "wrong-password", BackupCode: codes[1]})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, LoginInput{Email: "coach@example.com", Password: "coach-password", BackupCode: codes[1]})
	assert.NoError(t, err)
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	seedUser(t, f.store, f.hasher, "member@example.com", "member-password", models.RoleMember)

	first, err := f.svc.Login(ctx, LoginInput{Email: "member@example.com", Password: "member-password"})
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, RefreshInput{RefreshToken: first.AccessToken})
	assert.ErrorIs(t, err, security.ErrInvalidToken)

	second, err := f.svc.Refresh(ctx, RefreshInput{RefreshToken: first.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.User.ID, second.User.ID)

	_, err = f.svc.Refresh(ctx, RefreshInput{RefreshToken: first.RefreshToken})
	assert.ErrorIs(t, err, security.ErrInvalidToken)

	// Replaying a rotated token revoked the rotated session too.
	_, err = f.svc.Refresh(ctx, RefreshInput{RefreshToken: second.RefreshToken})
	assert.ErrorIs(t, err, security.ErrInvalidToken)
	assert.Zero(t, sessionCount(t, f.store))
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	seedUser(t, f.store, f.hasher, "member@example.com", "member-password", models.RoleMember)

	res, err := f.svc.Login(ctx, LoginInput{Email: "member@example.com", Password: "member-password"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, res.RefreshToken))
	require.NoError(t, f.svc.Logout(ctx, res.RefreshToken))

	_, err = f.svc.Refresh(ctx, RefreshInput{RefreshToken: res.RefreshToken})
	assert.ErrorIs(t, err, security.ErrInvalidToken)

	assert.ErrorIs(t, f.svc.Logout(ctx, "garbage"), apperrors.ErrUnauthenticated)
}

func TestSessionLimitKeepsNewest(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	seedUser(t, f.store, f.hasher, "member@example.com", "member-password", models.RoleMember)

	for i := 0; i < 5; i++ {
		_, err := f.svc.Login(ctx, LoginInput{Email: "member@example.com", Password: "member-password"})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, int64(3), sessionCount(t, f.store))
}

func TestRefreshOfEvictedSessionKeepsOthers(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	seedUser(t, f.store, f.hasher, "member@example.com", "member-password", models.RoleMember)

	var logins []AuthResult
	for i := 0; i < 4; i++ {
		res, err := f.svc.Login(ctx, LoginInput{Email: "member@example.com", Password: "member-password"})
		require.NoError(t, err)
		logins = append(logins, res)
		time.Sleep(2 * time.Millisecond)
	}

	// The first login fell out of the three session window.
	_, err := f.svc.Refresh(ctx, RefreshInput{RefreshToken: logins[0].RefreshToken})
	assert.ErrorIs(t, err, security.ErrInvalidToken)

	for _, res := range logins[1:] {
		_, err := f.svc.Refresh(ctx, RefreshInput{RefreshToken: res.RefreshToken})
		assert.NoError(t, err)
	}
}

func TestRefreshAfterLogoutKeepsOtherDevices(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	seedUser(t, f.store, f.hasher, "member@example.com", "member-password", models.RoleMember)

	phone, err := f.svc.Login(ctx, LoginInput{Email: "member@example.com", Password: "member-password"})
	require.NoError(t, err)
	laptop, err := f.svc.Login(ctx, LoginInput{Email: "member@example.com", Password: "member-password"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, phone.RefreshToken))
	_, err = f.svc.Refresh(ctx, RefreshInput{RefreshToken: phone.RefreshToken})
	assert.ErrorIs(t, err, security.ErrInvalidToken)

	_, err = f.svc.Refresh(ctx, RefreshInput{RefreshToken: laptop.RefreshToken})
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := seedUser(t, f.store, f.hasher, "member@example.com", "member-password", models.RoleMember)

	res, err := f.svc.Login(ctx, LoginInput{Email: "member@example.com", Password: "member-password"})
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, ChangePasswordInput{UserID: user.ID, CurrentPassword: "wrong", NewPassword: "brand-new-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = f.svc.ChangePassword(ctx, ChangePasswordInput{UserID: user.ID, CurrentPassword: "member-password", NewPassword: "short"})
	assert.ErrorIs(t, err, ErrWeakPassword)

	err = f.svc.ChangePassword(ctx, ChangePasswordInput{UserID: user.ID, CurrentPassword: "member-password", NewPassword: "brand-new-password"})
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, RefreshInput{RefreshToken: res.RefreshToken})
	assert.ErrorIs(t, err, security.ErrInvalidToken)

	_, err = f.svc.Login(ctx, LoginInput{Email: "member@example.com", Password: "member-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, LoginInput{Email: "member@example.com", Password: "brand-new-password"})
	require.NoError(t, err)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, queue.EventPasswordChanged, events[0].Type)

	err = f.svc.ChangePassword(ctx, ChangePasswordInput{UserID: "missing", CurrentPassword: "x", NewPassword: "brand-new-password"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestProvisionedAdminLogsIntoTheirGym(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	root := seedUser(t, f.store, f.hasher, "root@gymhub.test", "root-password", models.RoleSuperAdmin)
	provisioning := NewProvisioningService(f.store, f.hasher, nil, nil, nopLogger())

	created, err := provisioning.CreateAdmin(ctx, CreateAdminInput{
		Email:       "owner@example.com",
		Name:        "Dana Owner",
		PlanID:      "plan_basic",
		RequestedBy: root.ID,
	})
	require.NoError(t, err)

	before, err := f.svc.Login(ctx, LoginInput{Email: "owner@example.com", Password: created.TemporaryPassword})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, before.Identity.Role)
	assert.Empty(t, before.Identity.GymID)

	org, err := provisioning.CreateGym(ctx, CreateGymInput{AdminID: created.Admin.ID, Name: "Iron Temple"})
	require.NoError(t, err)

	after, err := f.svc.Login(ctx, LoginInput{Email: "owner@example.com", Password: created.TemporaryPassword})
	require.NoError(t, err)
	assert.Equal(t, org.ID, after.Identity.GymID)

	claims, err := f.tokens.VerifyAccess(after.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, org.ID, claims.GymID)

	user, bindings, err := f.svc.Me(ctx, created.Admin.ID)
	require.NoError(t, err)
	assert.Empty(t, user.PasswordHash)
	require.Len(t, bindings, 1)
	assert.Equal(t, org.ID, *bindings[0].OrganizationID)
}

func mustHash(t *testing.T, hasher *security.PasswordHasher, password string) string {
	t.Helper()
	hash, err := hasher.Hash(password)
	require.NoError(t, err)
	return hash
}
