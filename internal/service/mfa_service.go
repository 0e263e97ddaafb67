package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"

	"gymhub/api/internal/config"
	"gymhub/api/internal/metrics"
	"gymhub/api/internal/models"
	"gymhub/api/internal/queue"
	"gymhub/api/internal/repository"
)

const (
	backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	backupCodeLength   = 10
	totpSecretSize     = 20
)

// ReplayGuard rejects a second use of the same value inside ttl.
type ReplayGuard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type MFASetup struct {
	Secret string
	URI    string
}

type MFAStatus struct {
	Enabled              bool
	Pending              bool
	BackupCodesRemaining int
}

type MFAService struct {
	store    repository.Store
	cfg      config.MFAConfig
	guard    ReplayGuard
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
	log      zerolog.Logger
}

type MFAOption func(*MFAService)

func WithMFAClock(now func() time.Time) MFAOption {
	return func(s *MFAService) { s.now = now }
}

func WithReplayGuard(guard ReplayGuard) MFAOption {
	return func(s *MFAService) { s.guard = guard }
}

func WithMFANotifier(n Notifier) MFAOption {
	return func(s *MFAService) { s.notifier = notifierOrNoop(n) }
}

func WithMFAMetrics(m *metrics.Metrics) MFAOption {
	return func(s *MFAService) { s.metrics = m }
}

func NewMFAService(store repository.Store, cfg config.MFAConfig, log zerolog.Logger, opts ...MFAOption) *MFAService {
	if cfg.Period <= 0 {
		cfg.Period = 30 * time.Second
	}
	if cfg.Digits <= 0 {
		cfg.Digits = 6
	}
	if cfg.BackupCodeCount <= 0 {
		cfg.BackupCodeCount = 10
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "GymHub"
	}
	s := &MFAService{
		store:    store,
		cfg:      cfg,
		notifier: noopNotifier{},
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateSecret creates a new pending secret. It replaces an earlier
// pending one and refuses while MFA is enabled.
func (s *MFAService) GenerateSecret(ctx context.Context, userID string) (MFASetup, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return MFASetup{}, ErrUserNotFound
		}
		return MFASetup{}, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.Issuer,
		AccountName: user.Email,
		Period:      s.periodSeconds(),
		SecretSize:  totpSecretSize,
		Digits:      otp.Digits(s.cfg.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return MFASetup{}, fmt.Errorf("generate totp secret: %w", err)
	}

	if err := s.store.MFA().SavePending(ctx, userID, key.Secret()); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return MFASetup{}, ErrMFAAlreadyEnabled
		}
		return MFASetup{}, err
	}

	s.log.Info().Str("user_id", userID).Msg("mfa secret generated")
	return MFASetup{Secret: key.Secret(), URI: key.URL()}, nil
}

func (s *MFAService) VerifyAndEnable(ctx context.Context, userID, code string) (bool, error) {
	cred, err := s.credential(ctx, userID, false)
	if err != nil {
		return false, err
	}

	ok, err := s.checkTOTP(ctx, userID, cred.Secret, code)
	if err != nil || !ok {
		return false, err
	}
	if cred.Enabled {
		return true, nil
	}

	if err := s.store.MFA().Enable(ctx, userID, s.now().UTC()); err != nil {
		return false, err
	}

	s.log.Info().Str("user_id", userID).Msg("mfa enabled")
	s.notify(ctx, queue.EventMFAEnabled, userID)
	return true, nil
}

func (s *MFAService) Verify(ctx context.Context, userID, code string) (bool, error) {
	cred, err := s.credential(ctx, userID, true)
	if err != nil {
		return false, err
	}
	return s.checkTOTP(ctx, userID, cred.Secret, code)
}

// Disable accepts a current TOTP code or, once enabled, an unused backup code.
func (s *MFAService) Disable(ctx context.Context, userID, code string) (bool, error) {
	cred, err := s.credential(ctx, userID, false)
	if err != nil {
		return false, err
	}

	ok, err := s.checkTOTP(ctx, userID, cred.Secret, code)
	if err != nil {
		return false, err
	}
	if !ok && cred.Enabled {
		if ok, err = s.consumeBackupCode(ctx, userID, code); err != nil {
			return false, err
		}
	}
	if !ok {
		return false, nil
	}

	if err := s.store.MFA().Delete(ctx, userID); err != nil {
		return false, err
	}

	s.log.Info().Str("user_id", userID).Msg("mfa disabled")
	if cred.Enabled {
		s.notify(ctx, queue.EventMFADisabled, userID)
	}
	return true, nil
}

// GenerateBackupCodes replaces the user's backup codes. The plaintext codes
// are only ever available in the return value.
func (s *MFAService) GenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	if _, err := s.credential(ctx, userID, true); err != nil {
		return nil, err
	}

	codes := make([]string, 0, s.cfg.BackupCodeCount)
	hashes := make([]string, 0, s.cfg.BackupCodeCount)
	seen := make(map[string]struct{}, s.cfg.BackupCodeCount)
	for len(codes) < s.cfg.BackupCodeCount {
		raw, err := randomBackupCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		codes = append(codes, raw[:backupCodeLength/2]+"-"+raw[backupCodeLength/2:])
		hashes = append(hashes, hashBackupCode(userID, raw))
	}

	if err := s.store.WithTx(ctx, func(tx repository.Store) error {
		return tx.MFA().ReplaceBackupCodes(ctx, userID, hashes)
	}); err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", userID).Int("count", len(codes)).Msg("mfa backup codes generated")
	return codes, nil
}

func (s *MFAService) VerifyBackupCode(ctx context.Context, userID, code string) (bool, error) {
	if _, err := s.credential(ctx, userID, true); err != nil {
		return false, err
	}
	return s.consumeBackupCode(ctx, userID, code)
}

func (s *MFAService) Status(ctx context.Context, userID string) (MFAStatus, error) {
	cred, err := s.store.MFA().Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return MFAStatus{}, nil
	}
	if err != nil {
		return MFAStatus{}, err
	}
	remaining, err := s.store.MFA().CountBackupCodes(ctx, userID)
	if err != nil {
		return MFAStatus{}, err
	}
	return MFAStatus{Enabled: cred.Enabled, Pending: !cred.Enabled, BackupCodesRemaining: remaining}, nil
}

func (s *MFAService) credential(ctx context.Context, userID string, requireEnabled bool) (models.MFACredential, error) {
	cred, err := s.store.MFA().Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.MFACredential{}, ErrMFANotConfigured
		}
		return models.MFACredential{}, err
	}
	if requireEnabled && !cred.Enabled {
		return models.MFACredential{}, ErrMFANotConfigured
	}
	return cred, nil
}

func (s *MFAService) checkTOTP(ctx context.Context, userID, secret, code string) (bool, error) {
	code = strings.ReplaceAll(strings.TrimSpace(code), " ", "")
	if len(code) != s.cfg.Digits || !isDigits(code) {
		s.metrics.MFACheck("totp", false)
		return false, nil
	}

	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totp.ValidateOpts{
		Period:    s.periodSeconds(),
		Skew:      s.cfg.Skew,
		Digits:    otp.Digits(s.cfg.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		s.metrics.MFACheck("totp", false)
		return false, nil
	}

	if s.guard != nil {
		fresh, err := s.guard.Claim(ctx, "totp:"+userID+":"+code, s.replayWindow())
		if err != nil {
			return false, fmt.Errorf("mfa replay guard: %w", err)
		}
		if !fresh {
			s.log.Warn().Str("user_id", userID).Msg("totp code replayed")
			s.metrics.MFACheck("totp", false)
			return false, nil
		}
	}

	s.metrics.MFACheck("totp", true)
	return true, nil
}

func (s *MFAService) consumeBackupCode(ctx context.Context, userID, code string) (bool, error) {
	normalized, ok := normalizeBackupCode(code)
	if !ok {
		s.metrics.MFACheck("backup_code", false)
		return false, nil
	}
	consumed, err := s.store.MFA().ConsumeBackupCode(ctx, userID, hashBackupCode(userID, normalized))
	if err != nil {
		return false, err
	}
	if consumed {
		s.log.Info().Str("user_id", userID).Msg("mfa backup code used")
	}
	s.metrics.MFACheck("backup_code", consumed)
	return consumed, nil
}

func (s *MFAService) notify(ctx context.Context, typ queue.EventType, userID string) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("load user for notification failed")
		return
	}
	event := queue.Event{Type: typ, Recipient: user.Email, Data: map[string]string{"name": user.DisplayName}}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Str("type", string(typ)).Msg("publish notification failed")
	}
}

func (s *MFAService) periodSeconds() uint {
	return uint(s.cfg.Period / time.Second)
}

// replayWindow covers every step at which a code can still validate.
func (s *MFAService) replayWindow() time.Duration {
	return time.Duration(2*s.cfg.Skew+1) * s.cfg.Period
}

func randomBackupCode() (string, error) {
	buf := make([]byte, backupCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate backup code: %w", err)
	}
	// The alphabet has 32 symbols, so masking keeps the distribution uniform.
	for i, b := range buf {
		buf[i] = backupCodeAlphabet[b&31]
	}
	return string(buf), nil
}

func normalizeBackupCode(code string) (string, bool) {
	normalized := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(code)))
	if len(normalized) != backupCodeLength {
		return "", false
	}
	for _, r := range normalized {
		if !strings.ContainsRune(backupCodeAlphabet, r) {
			return "", false
		}
	}
	return normalized, true
}

func hashBackupCode(userID, normalized string) string {
	sum := sha256.Sum256([]byte(userID + ":" + normalized))
	return hex.EncodeToString(sum[:])
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
