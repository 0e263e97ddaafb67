package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"gymhub/api/internal/security"
)

const qrCodeSize = 256

type mfaCodeRequest struct {
	Code string `json:"code" binding:"required,max=32"`
}

func (h HandlerSet) MFAStatus(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	status, err := h.mfaService.Status(c.Request.Context(), id.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled":              status.Enabled,
		"pending":              status.Pending,
		"backupCodesRemaining": status.BackupCodesRemaining,
	})
}

func (h HandlerSet) MFASetup(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	setup, err := h.mfaService.GenerateSecret(c.Request.Context(), id.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	png, err := security.ProvisioningQRCode(setup.URI, qrCodeSize)
	if err != nil {
		h.respondError(c, err)
		return
	}

	noStore(c)
	c.JSON(http.StatusOK, gin.H{
		"secret":     setup.Secret,
		"otpauthUrl": setup.URI,
		"qrCode":     "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}

func (h HandlerSet) MFAEnable(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req mfaCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	valid, err := h.mfaService.VerifyAndEnable(c.Request.Context(), id.UserID, req.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_code"})
		return
	}

	codes, err := h.mfaService.GenerateBackupCodes(c.Request.Context(), id.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	noStore(c)
	c.JSON(http.StatusOK, gin.H{
		"enabled":     true,
		"backupCodes": codes,
	})
}

func (h HandlerSet) MFADisable(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req mfaCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	valid, err := h.mfaService.Disable(c.Request.Context(), id.UserID, req.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_code"})
		return
	}

	c.Status(http.StatusNoContent)
}

// MFABackupCodes replaces the backup codes after a fresh TOTP check.
func (h HandlerSet) MFABackupCodes(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req mfaCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	valid, err := h.mfaService.Verify(c.Request.Context(), id.UserID, req.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_code"})
		return
	}

	codes, err := h.mfaService.GenerateBackupCodes(c.Request.Context(), id.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	noStore(c)
	c.JSON(http.StatusOK, gin.H{"backupCodes": codes})
}
