package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint-server/src/middleware"
	"github.com/keymint/keymint-server/src/models"
	"github.com/keymint/keymint-server/src/scopes"
	"github.com/keymint/keymint-server/src/services"
)

// KeysHandler handles key lifecycle operations
type KeysHandler struct {
	keyService      *services.KeyService
	rotationService *services.RotationService
	auditService    *services.AuditService
}

// NewKeysHandler creates a new keys handler
func NewKeysHandler(keyService *services.KeyService, rotationService *services.RotationService, auditService *services.AuditService) *KeysHandler {
	return &KeysHandler{
		keyService:      keyService,
		rotationService: rotationService,
		auditService:    auditService,
	}
}

// CreateKeyRequest represents the request body for key creation
type CreateKeyRequest struct {
	Name      string            `json:"name" binding:"required,min=1,max=255"`
	Owner     string            `json:"owner" binding:"required"`
	Email     string            `json:"email" binding:"omitempty,email"`
	Scopes    []string          `json:"scopes" binding:"required,min=1"`
	ExpiresAt *time.Time        `json:"expires_at"`
	Metadata  map[string]string `json:"metadata"`
}

// HandleCreateKey handles POST /api/keys. The response carries the
// secret exactly once; it cannot be retrieved again.
func (kh *KeysHandler) HandleCreateKey(c *gin.Context) {
	var req CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid key creation request",
			"details": err.Error(),
		})
		return
	}

	in := services.CreateKeyInput{
		Name:      req.Name,
		Owner:     req.Owner,
		Email:     req.Email,
		Scopes:    req.Scopes,
		CreatedBy: middleware.GetActorID(c),
		Metadata:  req.Metadata,
	}
	if req.ExpiresAt != nil {
		in.ExpiresAt = *req.ExpiresAt
	}

	key, err := kh.keyService.CreateKey(c.Request.Context(), in)
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "server_error",
			"message": "Failed to create key",
		})
		return
	}

	kh.audit(c, models.ActionKeyCreated, map[string]string{
		"key_id": key.ID,
		"owner":  key.Owner,
	})

	c.JSON(http.StatusCreated, gin.H{
		"key":     key,
		"warning": "Store the secret now; it will not be shown again.",
	})
}

// HandleListKeys handles GET /api/keys with cursor pagination. An
// offset query parameter selects the legacy offset form instead.
func (kh *KeysHandler) HandleListKeys(c *gin.Context) {
	limit := intQuery(c, "limit", 50)

	if offsetRaw := c.Query("offset"); offsetRaw != "" {
		offset, err := strconv.Atoi(offsetRaw)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "offset must be a non-negative integer",
			})
			return
		}
		keys, err := kh.keyService.ListKeys(c.Request.Context(), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "server_error",
				"message": "Failed to list keys",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"keys": keys})
		return
	}

	includeRotated := c.Query("include_rotated") == "true"
	page, err := kh.keyService.ListKeysWithCursor(c.Request.Context(), limit, c.Query("cursor"), includeRotated)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "server_error",
			"message": "Failed to list keys",
		})
		return
	}

	c.JSON(http.StatusOK, page)
}

// HandleGetKey handles GET /api/keys/:id
func (kh *KeysHandler) HandleGetKey(c *gin.Context) {
	key, err := kh.keyService.GetKey(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Key not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "server_error",
			"message": "Failed to load key",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"key": key})
}

// RevokeKeyRequest represents the optional request body for revocation
type RevokeKeyRequest struct {
	Reason string `json:"reason"`
}

// HandleRevokeKey handles DELETE /api/keys/:id. Revocation is
// idempotent; repeating it succeeds without a second audit entry.
func (kh *KeysHandler) HandleRevokeKey(c *gin.Context) {
	var req RevokeKeyRequest
	// Body is optional
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "revoked by administrator"
	}

	actor := middleware.GetActorID(c)
	key, changed, err := kh.keyService.RevokeKey(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		if errors.Is(err, services.ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Key not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "server_error",
			"message": "Failed to revoke key",
		})
		return
	}

	if changed {
		action := models.ActionKeyRevoked
		if scopes.HasAdminScope(key.Scopes, models.AdminScopeNamespace) {
			action = models.ActionAdminKeyRevoked
		}
		kh.audit(c, action, map[string]string{
			"key_id": key.ID,
			"owner":  key.Owner,
			"reason": req.Reason,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"key":     key,
		"revoked": changed,
	})
}

// RotateKeyRequest represents the request body for rotation
type RotateKeyRequest struct {
	GracePeriodDays *int       `json:"grace_period_days"`
	Scopes          []string   `json:"scopes"`
	Name            string     `json:"name"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

// HandleRotateKey handles POST /api/keys/:id/rotate
func (kh *KeysHandler) HandleRotateKey(c *gin.Context) {
	var req RotateKeyRequest
	// Body is optional; an absent body rotates with defaults
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Invalid rotation request",
				"details": err.Error(),
			})
			return
		}
	}

	result, err := kh.rotationService.RotateKey(c.Request.Context(), c.Param("id"), services.RotateOptions{
		GracePeriodDays: req.GracePeriodDays,
		Scopes:          req.Scopes,
		Name:            req.Name,
		ExpiresAt:       req.ExpiresAt,
		RotatedBy:       middleware.GetActorID(c),
	})
	if err != nil {
		if errors.Is(err, services.ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Key not found",
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
			"message": "Failed to rotate key",
		})
		return
	}

	kh.audit(c, models.ActionKeyRotated, map[string]string{
		"key_id":       result.OldKey.ID,
		"successor_id": result.NewKey.ID,
	})

	c.JSON(http.StatusOK, gin.H{
		"new_key": result.NewKey,
		"old_key": result.OldKey,
		"warning": "Store the new secret now; it will not be shown again.",
	})
}

// BulkRevokeRequest represents the request body for owner-wide revocation
type BulkRevokeRequest struct {
	Owner  string `json:"owner" binding:"required"`
	Reason string `json:"reason"`
}

// HandleBulkRevoke handles POST /api/keys/bulk-revoke, revoking every
// key held by one owner.
func (kh *KeysHandler) HandleBulkRevoke(c *gin.Context) {
	var req BulkRevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Bulk revocation requires an owner",
		})
		return
	}
	if req.Reason == "" {
		req.Reason = "bulk revocation"
	}

	revoked, err := kh.keyService.RevokeKeysByOwner(c.Request.Context(), req.Owner, middleware.GetActorID(c), req.Reason)
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "server_error",
			"message": "Bulk revocation failed",
		})
		return
	}

	if revoked > 0 {
		kh.audit(c, models.ActionBulkKeysRevoked, map[string]string{
			"owner":   req.Owner,
			"reason":  req.Reason,
			"revoked": strconv.Itoa(revoked),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"owner":   req.Owner,
		"revoked": revoked,
	})
}

// HandleCleanup handles POST /api/keys/cleanup, sweeping expired keys
// and expired rotation grace windows on demand.
func (kh *KeysHandler) HandleCleanup(c *gin.Context) {
	result, err := kh.keyService.CleanupExpiredKeys(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "server_error",
			"message": "Cleanup sweep failed",
		})
		return
	}

	if result.ExpiredKeys > 0 || result.ExpiredRotations > 0 {
		kh.audit(c, models.ActionCleanupExecuted, map[string]string{
			"expired_keys":      strconv.Itoa(result.ExpiredKeys),
			"expired_rotations": strconv.Itoa(result.ExpiredRotations),
		})
	}

	c.JSON(http.StatusOK, result)
}

// audit records an administrative action with request context. Audit
// failures are swallowed here; the service already logs them.
func (kh *KeysHandler) audit(c *gin.Context, action string, details map[string]string) {
	_, _ = kh.auditService.Append(c.Request.Context(), middleware.GetActorID(c), action, details, services.AuditMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
