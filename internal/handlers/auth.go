package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gymhub/api/internal/models"
	"gymhub/api/internal/service"
)

type registerRequest struct {
	Email       string `json:"email" binding:"required,email,max=254"`
	Password    string `json:"password" binding:"required,min=8,max=128"`
	DisplayName string `json:"displayName" binding:"required,max=120"`
}

type authResponse struct {
	AccessToken      string       `json:"accessToken"`
	AccessExpiresAt  time.Time    `json:"accessExpiresAt"`
	RefreshToken     string       `json:"refreshToken"`
	RefreshExpiresAt time.Time    `json:"refreshExpiresAt"`
	TokenType        string       `json:"tokenType"`
	User             userResponse `json:"user"`
}

type userResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	Role          string `json:"role,omitempty"`
	GymID         string `json:"gymId,omitempty"`
	BranchID      string `json:"branchId,omitempty"`
	Status        string `json:"status"`
	EmailVerified bool   `json:"emailVerified"`
}

type roleBindingResponse struct {
	Role           string  `json:"role"`
	OrganizationID *string `json:"organizationId,omitempty"`
	BranchID       *string `json:"branchId,omitempty"`
	TeamRole       *string `json:"teamRole,omitempty"`
	Primary        bool    `json:"primary"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{
		ID:            user.ID,
		Email:         user.Email,
		DisplayName:   user.DisplayName,
		Status:        string(user.Status),
		EmailVerified: user.EmailVerified,
	}
}

func (h HandlerSet) RegisterAccount(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.GetHeader("User-Agent"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	sendAuthResponse(c, http.StatusCreated, result)
}

type loginRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	MFACode    string `json:"mfaCode"`
	BackupCode string `json:"backupCode"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		MFACode:    req.MFACode,
		BackupCode: req.BackupCode,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.GetHeader("User-Agent"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	sendAuthResponse(c, http.StatusOK, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h HandlerSet) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Refresh(c.Request.Context(), service.RefreshInput{
		RefreshToken: req.RefreshToken,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.GetHeader("User-Agent"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	sendAuthResponse(c, http.StatusOK, result)
}

func (h HandlerSet) Logout(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func sendAuthResponse(c *gin.Context, status int, result service.AuthResult) {
	user := newUserResponse(result.User)
	user.Role = string(result.Identity.Role)
	user.GymID = result.Identity.GymID
	user.BranchID = result.Identity.BranchID

	noStore(c)
	c.JSON(status, authResponse{
		AccessToken:      result.AccessToken,
		AccessExpiresAt:  result.AccessExpiresAt,
		RefreshToken:     result.RefreshToken,
		RefreshExpiresAt: result.RefreshExpiresAt,
		TokenType:        "Bearer",
		User:             user,
	})
}

func (h HandlerSet) Me(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	user, bindings, err := h.authService.Me(c.Request.Context(), id.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := newUserResponse(user)
	resp.Role = string(id.Role)
	resp.GymID = id.GymID
	resp.BranchID = id.BranchID

	roles := make([]roleBindingResponse, 0, len(bindings))
	for _, b := range bindings {
		roles = append(roles, roleBindingResponse{
			Role:           string(b.Role),
			OrganizationID: b.OrganizationID,
			BranchID:       b.BranchID,
			TeamRole:       b.TeamRole,
			Primary:        b.IsPrimary,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"user":  resp,
		"roles": roles,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8,max=128"`
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), service.ChangePasswordInput{
		UserID:          id.UserID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	}); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
