package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gymhub/api/internal/apperrors"
	"gymhub/api/internal/config"
	"gymhub/api/internal/models"
)

const (
	ClaimsVersion = 1

	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	// ErrInvalidToken is returned for every verification failure so callers
	// cannot tell a bad signature from an expired or mistyped token.
	ErrInvalidToken  = apperrors.Unauthenticated("invalid or expired token")
	ErrMissingSecret = errors.New("token signing secret is not configured")
)

var signingMethod = jwt.SigningMethodHS512

// Identity is what a token asserts about its bearer.
type Identity struct {
	UserID   string
	Email    string
	Role     models.Role
	TeamRole string
	BranchID string
	GymID    string
}

type Claims struct {
	Version  int         `json:"ver"`
	UserID   string      `json:"uid"`
	Email    string      `json:"email"`
	Role     models.Role `json:"role"`
	TeamRole string      `json:"team_role,omitempty"`
	BranchID string      `json:"branch_id,omitempty"`
	GymID    string      `json:"gym_id,omitempty"`
	Type     string      `json:"typ"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{
		UserID:   c.UserID,
		Email:    c.Email,
		Role:     c.Role,
		TeamRole: c.TeamRole,
		BranchID: c.BranchID,
		GymID:    c.GymID,
	}
}

type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type TokenOption func(*TokenIssuer)

func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTokenIssuer(cfg config.SecurityConfig, opts ...TokenOption) (*TokenIssuer, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}
	t := &TokenIssuer{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	if t.accessTTL <= 0 {
		t.accessTTL = 15 * time.Minute
	}
	if t.refreshTTL <= 0 {
		t.refreshTTL = 7 * 24 * time.Hour
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *TokenIssuer) IssueAccess(id Identity) (IssuedToken, error) {
	return t.issue(id, TokenTypeAccess, t.accessTTL)
}

// IssueRefresh signs a refresh token whose random ID names the session
// record that backs it.
func (t *TokenIssuer) IssueRefresh(id Identity) (IssuedToken, error) {
	return t.issue(id, TokenTypeRefresh, t.refreshTTL)
}

func (t *TokenIssuer) issue(id Identity, tokenType string, ttl time.Duration) (IssuedToken, error) {
	if id.UserID == "" {
		return IssuedToken{}, errors.New("issue token: identity has no user id")
	}

	now := t.now().UTC().Truncate(time.Second)
	tokenID := uuid.NewString()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Version:  ClaimsVersion,
		UserID:   id.UserID,
		Email:    id.Email,
		Role:     id.Role,
		TeamRole: id.TeamRole,
		BranchID: id.BranchID,
		GymID:    id.GymID,
		Type:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   id.UserID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(t.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign jwt: %w", err)
	}
	return IssuedToken{Token: signed, ID: tokenID, ExpiresAt: expiresAt}, nil
}

func (t *TokenIssuer) VerifyAccess(token string) (*Claims, error) {
	return t.verify(token, TokenTypeAccess)
}

func (t *TokenIssuer) VerifyRefresh(token string) (*Claims, error) {
	return t.verify(token, TokenTypeRefresh)
}

func (t *TokenIssuer) verify(tokenStr, tokenType string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	)

	var claims Claims
	token, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Version != ClaimsVersion || claims.Type != tokenType || claims.UserID == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
