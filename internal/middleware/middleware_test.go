package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymhub/api/internal/config"
	"gymhub/api/internal/ids"
	"gymhub/api/internal/models"
	"gymhub/api/internal/repository"
	"gymhub/api/internal/security"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		identity *security.Identity
		required []models.Role
		status   int
		message  string
	}{
		{name: "no identity", identity: nil, required: nil, status: http.StatusUnauthorized, message: "unauthorized"},
		{name: "empty identity", identity: &security.Identity{}, required: nil, status: http.StatusUnauthorized, message: "unauthorized"},
		{name: "super admin bypass", identity: &security.Identity{UserID: "u1", Role: models.RoleSuperAdmin}, required: []models.Role{models.RoleMember}, status: http.StatusOK},
		{name: "empty list allows member", identity: &security.Identity{UserID: "u1", Role: models.RoleMember}, required: nil, status: http.StatusOK},
		{name: "listed role", identity: &security.Identity{UserID: "u1", Role: models.RoleTrainer}, required: []models.Role{models.RoleStaff, models.RoleTrainer}, status: http.StatusOK},
		{name: "unlisted role", identity: &security.Identity{UserID: "u1", Role: models.RoleManager}, required: []models.Role{models.RoleAdmin}, status: http.StatusForbidden, message: "role manager is not permitted"},
		{name: "admin does not imply staff", identity: &security.Identity{UserID: "u1", Role: models.RoleAdmin}, required: []models.Role{models.RoleStaff}, status: http.StatusForbidden, message: "role admin is not permitted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.identity, tt.required)
			assert.Equal(t, tt.status, d.Status)
			assert.Equal(t, tt.message, d.Message)
			assert.Equal(t, tt.status == http.StatusOK, d.Allowed())
		})
	}
}

func TestAuthorizeMiddleware(t *testing.T) {
	router := gin.New()
	router.GET("/admins-only",
		func(c *gin.Context) {
			if role := c.GetHeader("X-Test-Role"); role != "" {
				SetIdentity(c, &security.Identity{UserID: "u1", Role: models.Role(role)})
			}
			c.Next()
		},
		Authorize(models.RoleAdmin),
		func(c *gin.Context) { c.Status(http.StatusNoContent) },
	)

	do := func(role string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/admins-only", nil)
		if role != "" {
			req.Header.Set("X-Test-Role", role)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusNoContent, do("admin").Code)
	assert.Equal(t, http.StatusNoContent, do("super_admin").Code)

	rec := do("member")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "role member is not permitted", body["error"])
}

func TestAuthMiddleware(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	tokens, err := security.NewTokenIssuer(config.SecurityConfig{
		JWTSecret:  "middleware-test-secret",
		Issuer:     "gymhub-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	})
	require.NoError(t, err)

	active := models.User{ID: ids.New(), Email: "active@example.com", DisplayName: "Active", Status: models.UserStatusActive}
	suspended := models.User{ID: ids.New(), Email: "suspended@example.com", DisplayName: "Suspended", Status: models.UserStatusSuspended}
	require.NoError(t, store.Users().Create(ctx, active))
	require.NoError(t, store.Users().Create(ctx, suspended))

	issue := func(id security.Identity, refresh bool) string {
		var tok security.IssuedToken
		var err error
		if refresh {
			tok, err = tokens.IssueRefresh(id)
		} else {
			tok, err = tokens.IssueAccess(id)
		}
		require.NoError(t, err)
		return tok.Token
	}

	router := gin.New()
	router.GET("/me", Auth(tokens, store.Users()), func(c *gin.Context) {
		identity := CurrentIdentity(c)
		c.JSON(http.StatusOK, gin.H{"id": identity.UserID, "role": identity.Role, "gym": identity.GymID})
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-jwt", status: http.StatusUnauthorized},
		{name: "refresh token", header: "Bearer " + issue(security.Identity{UserID: active.ID, Role: models.RoleMember}, true), status: http.StatusUnauthorized},
		{name: "unknown user", header: "Bearer " + issue(security.Identity{UserID: "ghost", Role: models.RoleMember}, false), status: http.StatusUnauthorized},
		{name: "suspended user", header: "Bearer " + issue(security.Identity{UserID: suspended.ID, Role: models.RoleMember}, false), status: http.StatusForbidden},
		{name: "valid", header: "Bearer " + issue(security.Identity{UserID: active.ID, Role: models.RoleAdmin, GymID: "gym-1"}, false), status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)

			if tt.status == http.StatusOK {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, active.ID, body["id"])
				assert.Equal(t, "admin", body["role"])
				assert.Equal(t, "gym-1", body["gym"])
			}
		})
	}
}

func TestRequestIDAndSecureHeaders(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), Secure(false, zerolog.Nop()))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))
}

func TestRequestIDReplacesUnsafeValues(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	for _, supplied := range []string{
		"",
		strings.Repeat("a", maxRequestIDLength+1),
		"id with spaces",
		"line\nbreak",
		`quote"d`,
	} {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, supplied)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		got := rec.Header().Get(RequestIDHeader)
		assert.NotEqual(t, supplied, got)
		_, err := uuid.Parse(got)
		assert.NoError(t, err, "replacement for %q", supplied)
		assert.Equal(t, got, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "edge:7f3a-01.B_2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "edge:7f3a-01.B_2", rec.Header().Get(RequestIDHeader))
}

func TestRecoveryAnswersInternalError(t *testing.T) {
	var logs bytes.Buffer
	router := gin.New()
	router.Use(RequestID(), Recovery(zerolog.New(&logs)))
	router.GET("/gyms/:id", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/gyms/g1", nil)
	req.Header.Set(RequestIDHeader, "req-boom")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal_server_error","requestId":"req-boom"}`, rec.Body.String())

	var line map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &line))
	assert.Equal(t, "boom", line["panic"])
	assert.Equal(t, "/gyms/:id", line["route"])
	assert.Equal(t, "req-boom", line["request_id"])
	assert.NotEmpty(t, line["stack"])
}

func TestRecoveryRepanicsAbortHandler(t *testing.T) {
	router := gin.New()
	router.Use(Recovery(zerolog.Nop()))
	router.GET("/abort", func(c *gin.Context) { panic(http.ErrAbortHandler) })

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/abort", nil))
	})
}

func TestLoggerRecordsRouteAndCaller(t *testing.T) {
	var logs bytes.Buffer
	router := gin.New()
	router.Use(RequestID(), Logger(zerolog.New(&logs)))
	router.GET("/gyms/:id", func(c *gin.Context) {
		SetIdentity(c, &security.Identity{UserID: "u-17", Role: models.RoleAdmin, GymID: "g-3"})
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/gyms/g-3", nil)
	req.Header.Set(RequestIDHeader, "req-log")
	router.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "/gyms/:id", line["route"])
	assert.Equal(t, "u-17", line["user_id"])
	assert.Equal(t, "admin", line["role"])
	assert.Equal(t, "g-3", line["gym_id"])
	assert.Equal(t, "req-log", line["request_id"])
	assert.EqualValues(t, http.StatusNoContent, line["status"])

	logs.Reset()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	require.NoError(t, json.Unmarshal(logs.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, unmatchedRoute, line["route"])
}

func TestCORS(t *testing.T) {
	newRouter := func(origins ...string) *gin.Engine {
		router := gin.New()
		router.Use(CORS(origins))
		router.GET("/plans", func(c *gin.Context) { c.Status(http.StatusOK) })
		return router
	}
	send := func(router *gin.Engine, method, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/plans", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	restricted := newRouter("https://app.gymhub.test/")

	rec := send(restricted, http.MethodOptions, "https://app.gymhub.test")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.gymhub.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), RequestIDHeader)

	rec = send(restricted, http.MethodGet, "https://app.gymhub.test")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, RequestIDHeader, rec.Header().Get("Access-Control-Expose-Headers"))

	rec = send(restricted, http.MethodOptions, "https://evil.test")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = send(restricted, http.MethodGet, "https://evil.test")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = send(restricted, http.MethodGet, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Vary"))

	openRouter := newRouter()
	rec = send(openRouter, http.MethodGet, "http://localhost:5173")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}
