package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/keymint/keymint-server/src/models"
	"github.com/keymint/keymint-server/src/scopes"
	"github.com/keymint/keymint-server/src/services"
)

// Context keys set by the auth middleware
const (
	ContextActorID     = "actor_id"
	ContextActorScopes = "actor_scopes"
	ContextAuthMethod  = "auth_method"
)

// JWTSecret should be loaded from environment via config
var jwtSecret string

// SetJWTSecret initializes the JWT secret from config
func SetJWTSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	if len(secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}
	jwtSecret = secret
	return nil
}

// AdminClaims represents JWT claims for admin sessions
type AdminClaims struct {
	AdminID  string `json:"admin_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateAdminToken creates a JWT session token for an admin user
func GenerateAdminToken(adminID uuid.UUID, username string) (string, error) {
	claims := AdminClaims{
		AdminID:  adminID.String(),
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "keymint",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

// ValidateAdminToken verifies a JWT session token and returns its claims
func ValidateAdminToken(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})

	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	return claims, nil
}

// extractCredential pulls the caller's credential from the admin_token
// cookie or the Authorization header.
func extractCredential(c *gin.Context) string {
	if cookie, err := c.Cookie("admin_token"); err == nil && cookie != "" {
		return cookie
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// RequireScope authenticates the request and enforces one required
// scope. Two credential forms are accepted: an API key secret (km_
// prefix), validated through the key service with the scope attached,
// and an admin JWT session, which implicitly holds the whole admin
// namespace.
func RequireScope(keyService *services.KeyService, requiredScope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := extractCredential(c)
		if credential == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authentication credential"})
			c.Abort()
			return
		}

		if strings.HasPrefix(credential, services.SecretPrefix) {
			result, err := keyService.ValidateKey(c.Request.Context(), credential, []string{requiredScope})
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate key"})
				c.Abort()
				return
			}
			if !result.Valid {
				if result.Reason == services.ReasonInsufficientScope {
					c.JSON(http.StatusForbidden, gin.H{
						"error":          "insufficient scope",
						"missing_scopes": result.MissingScopes,
					})
				} else {
					c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or inactive key"})
				}
				c.Abort()
				return
			}
			c.Set(ContextActorID, result.Key.ID)
			c.Set(ContextActorScopes, result.GrantedScopes)
			c.Set(ContextAuthMethod, "api_key")
			c.Next()
			return
		}

		claims, err := ValidateAdminToken(credential)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		adminScopes := []string{models.AdminScopeNamespace + ":*"}
		if err := scopes.RequirePermission(adminScopes, requiredScope); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient scope"})
			c.Abort()
			return
		}
		c.Set(ContextActorID, claims.AdminID)
		c.Set(ContextActorScopes, adminScopes)
		c.Set(ContextAuthMethod, "admin_session")
		c.Next()
	}
}

// GetActorID returns the authenticated actor id from the context
func GetActorID(c *gin.Context) string {
	if id, exists := c.Get(ContextActorID); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
