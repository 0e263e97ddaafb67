package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"gymhub/api/internal/config"
	"gymhub/api/internal/ids"
	"gymhub/api/internal/models"
	"gymhub/api/internal/queue"
	"gymhub/api/internal/repository"
	"gymhub/api/internal/security"
)

var testMFAConfig = config.MFAConfig{
	Issuer:          "GymHub",
	Period:          30 * time.Second,
	Skew:            2,
	Digits:          6,
	BackupCodeCount: 10,
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []queue.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event queue.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Events() []queue.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]queue.Event(nil), n.events...)
}

func newTestStore() *repository.MemoryStore {
	plans := append(repository.DefaultPlans(), models.SubscriptionPlan{ID: "plan_legacy", Name: "Legacy", IsActive: false})
	return repository.NewMemoryStore(plans...)
}

func newTestHasher(t *testing.T) *security.PasswordHasher {
	t.Helper()
	h, err := security.NewPasswordHasher(security.DefaultPBKDF2Params)
	require.NoError(t, err)
	return h
}

func newTestTokens(t *testing.T) *security.TokenIssuer {
	t.Helper()
	tokens, err := security.NewTokenIssuer(config.SecurityConfig{
		JWTSecret:  "service-test-secret",
		Issuer:     "gymhub-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return tokens
}

// seedUser creates an active user holding role as its primary binding.
func seedUser(t *testing.T, store repository.Store, hasher *security.PasswordHasher, email, password string, role models.Role) models.User {
	t.Helper()
	ctx := context.Background()

	hash := ""
	if password != "" {
		var err error
		hash, err = hasher.Hash(password)
		require.NoError(t, err)
	}
	user := models.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  "Test " + string(role),
		Status:       models.UserStatusActive,
	}
	require.NoError(t, store.Users().Create(ctx, user))
	require.NoError(t, store.Users().CreateRoleBinding(ctx, models.RoleBinding{
		ID:        ids.New(),
		UserID:    user.ID,
		Role:      role,
		IsPrimary: true,
	}))
	return user
}

func totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }
