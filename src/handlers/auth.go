package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint-server/src/middleware"
	"github.com/keymint/keymint-server/src/models"
	"github.com/keymint/keymint-server/src/services"
)

// AuthHandler handles first-run setup and admin session login
type AuthHandler struct {
	adminService *services.AdminService
	keyService   *services.KeyService
	auditService *services.AuditService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(adminService *services.AdminService, keyService *services.KeyService, auditService *services.AuditService) *AuthHandler {
	return &AuthHandler{
		adminService: adminService,
		keyService:   keyService,
		auditService: auditService,
	}
}

// SetupRequest represents the first-run setup request
type SetupRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=12"`
}

// HandleSetup handles POST /setup. It runs exactly once: it creates
// the first admin account plus a bootstrap key holding the full admin
// namespace, and refuses once any admin exists.
func (ah *AuthHandler) HandleSetup(c *gin.Context) {
	var req SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid setup request",
			"details": err.Error(),
		})
		return
	}

	has, err := ah.adminService.HasAdmins(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "server_error",
			"message": "Failed to check setup state",
		})
		return
	}
	if has {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "already_configured",
			"message": "Setup has already been completed",
		})
		return
	}

	admin, err := ah.adminService.CreateAdminUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrAdminExists) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "already_configured",
				"message": "Setup has already been completed",
			})
			return
		}
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "server_error",
			"message": "Failed to create admin account",
		})
		return
	}

	bootstrapKey, err := ah.keyService.CreateKey(c.Request.Context(), services.CreateKeyInput{
		Name:      "bootstrap admin key",
		Owner:     admin.Username,
		Scopes:    models.AllAdminScopes(),
		CreatedBy: admin.ID.String(),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "server_error",
			"message": "Admin account created but bootstrap key failed; create a key via the session API",
		})
		return
	}

	ah.audit(c, admin.ID.String(), models.ActionSetup, map[string]string{
		"username":         admin.Username,
		"bootstrap_key_id": bootstrapKey.ID,
	})

	c.JSON(http.StatusCreated, gin.H{
		"admin":         admin,
		"bootstrap_key": bootstrapKey,
		"warning":       "Store the bootstrap secret now; it will not be shown again.",
	})
}

// LoginRequest represents the request body for admin login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// HandleLogin handles POST /api/auth/login, exchanging credentials for
// a JWT session cookie.
func (ah *AuthHandler) HandleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid login request",
		})
		return
	}

	admin, err := ah.adminService.AuthenticateAdmin(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		ah.audit(c, req.Username, models.ActionAdminLoginFailed, map[string]string{
			"username": req.Username,
		})
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_credentials",
			"message": "Invalid username or password",
		})
		return
	}

	token, err := middleware.GenerateAdminToken(admin.ID, admin.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "server_error",
			"message": "Failed to create session",
		})
		return
	}

	c.SetCookie(
		"admin_token",
		token,
		int((24 * time.Hour).Seconds()),
		"/",
		"",
		true, // Secure
		true, // HttpOnly
	)

	ah.audit(c, admin.ID.String(), models.ActionAdminLogin, map[string]string{
		"username": admin.Username,
	})

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": time.Now().Add(24 * time.Hour).Unix(),
	})
}

func (ah *AuthHandler) audit(c *gin.Context, adminID, action string, details map[string]string) {
	_, _ = ah.auditService.Append(c.Request.Context(), adminID, action, details, services.AuditMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
}
