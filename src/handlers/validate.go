package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint-server/src/services"
)

// ValidateHandler serves the public key validation endpoint
type ValidateHandler struct {
	keyService *services.KeyService
}

// NewValidateHandler creates a new validate handler
func NewValidateHandler(keyService *services.KeyService) *ValidateHandler {
	return &ValidateHandler{keyService: keyService}
}

// ValidateRequest represents the request body for validation
type ValidateRequest struct {
	Secret string   `json:"secret" binding:"required"`
	Scopes []string `json:"scopes"`
}

// ValidateResponse is the public validation outcome. Failures are
// uniform: the response never distinguishes an unknown secret from a
// revoked key or a missing scope, so the endpoint cannot be used to
// probe which credentials exist.
type ValidateResponse struct {
	Valid bool `json:"valid"`

	KeyID         string   `json:"key_id,omitempty"`
	Owner         string   `json:"owner,omitempty"`
	GrantedScopes []string `json:"granted_scopes,omitempty"`
	ExpiresAt     string   `json:"expires_at,omitempty"`

	// Rotation advisory: the caller should migrate to the successor
	// before the grace window closes
	Rotated     bool   `json:"rotated,omitempty"`
	SuccessorID string `json:"successor_id,omitempty"`
}

// HandleValidate handles POST /api/validate
func (vh *ValidateHandler) HandleValidate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request must carry a secret",
		})
		return
	}

	result, err := vh.keyService.ValidateKey(c.Request.Context(), req.Secret, req.Scopes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "server_error",
			"message": "Validation unavailable",
		})
		return
	}

	if !result.Valid {
		c.JSON(http.StatusOK, ValidateResponse{Valid: false})
		return
	}

	resp := ValidateResponse{
		Valid:         true,
		KeyID:         result.Key.ID,
		Owner:         result.Key.Owner,
		GrantedScopes: result.GrantedScopes,
		Rotated:       result.Rotated,
		SuccessorID:   result.SuccessorID,
	}
	if !result.Key.ExpiresAt.IsZero() {
		resp.ExpiresAt = result.Key.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	c.JSON(http.StatusOK, resp)
}
