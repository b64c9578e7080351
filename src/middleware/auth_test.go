package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/keymint/keymint-server/src/models"
	"github.com/keymint/keymint-server/src/services"
	"github.com/keymint/keymint-server/src/store"
)

func newScopedRouter(t *testing.T, requiredScope string) (*gin.Engine, *services.KeyService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := SetJWTSecret("0123456789abcdef0123456789abcdef"); err != nil {
		t.Fatalf("failed to set JWT secret: %v", err)
	}

	keyService := services.NewKeyService(store.NewMemory(), services.KeyServiceConfig{MinExpiryHorizon: time.Minute})
	router := gin.New()
	router.GET("/guarded", RequireScope(keyService, requiredScope), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"actor": GetActorID(c)})
	})
	return router, keyService
}

func get(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireScope_MissingCredential(t *testing.T) {
	router, _ := newScopedRouter(t, models.ScopeKeysRead)

	if w := get(router, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without credential, got %d", w.Code)
	}
}

func TestRequireScope_KeyCredential(t *testing.T) {
	router, keyService := newScopedRouter(t, models.ScopeKeysRead)

	granted, err := keyService.CreateKey(context.Background(), services.CreateKeyInput{
		Name: "reader", Owner: "ops", Scopes: []string{models.ScopeKeysRead},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	narrow, err := keyService.CreateKey(context.Background(), services.CreateKeyInput{
		Name: "narrow", Owner: "ops", Scopes: []string{"reports:read"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if w := get(router, "Bearer "+granted.Secret); w.Code != http.StatusOK {
		t.Errorf("expected 200 with granted key, got %d: %s", w.Code, w.Body.String())
	}
	if w := get(router, "Bearer "+narrow.Secret); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 with under-scoped key, got %d", w.Code)
	}
	if w := get(router, "Bearer km_0000000000000000000000000000000000000000000000000000000000000000"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with unknown key, got %d", w.Code)
	}
}

func TestRequireScope_RevokedKeyRejected(t *testing.T) {
	router, keyService := newScopedRouter(t, models.ScopeKeysRead)

	key, err := keyService.CreateKey(context.Background(), services.CreateKeyInput{
		Name: "reader", Owner: "ops", Scopes: []string{models.ScopeKeysRead},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, _, err := keyService.RevokeKey(context.Background(), key.ID, "test", "test"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	if w := get(router, "Bearer "+key.Secret); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with revoked key, got %d", w.Code)
	}
}

// Admin sessions hold the whole admin namespace, so the JWT path passes
// any admin-namespace guard but never a guard outside it.
func TestRequireScope_AdminSession(t *testing.T) {
	router, _ := newScopedRouter(t, models.ScopeKeysRead)

	token, err := GenerateAdminToken(uuid.New(), "root")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if w := get(router, "Bearer "+token); w.Code != http.StatusOK {
		t.Errorf("expected 200 with admin session, got %d: %s", w.Code, w.Body.String())
	}
	if w := get(router, "Bearer not-a-token"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with malformed token, got %d", w.Code)
	}

	outside, _ := newScopedRouter(t, "reports:read")
	if w := get(outside, "Bearer "+token); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a session outside the admin namespace, got %d", w.Code)
	}
}
