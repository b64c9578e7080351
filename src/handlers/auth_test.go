package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint-server/src/middleware"
	"github.com/keymint/keymint-server/src/models"
	"github.com/keymint/keymint-server/src/services"
)

func newAuthRouter(t *testing.T, ts *testServices) *gin.Engine {
	t.Helper()
	if err := middleware.SetJWTSecret("0123456789abcdef0123456789abcdef"); err != nil {
		t.Fatalf("failed to set JWT secret: %v", err)
	}
	ah := NewAuthHandler(ts.admins, ts.keys, ts.audit)
	router := gin.New()
	router.POST("/setup", ah.HandleSetup)
	router.POST("/api/auth/login", ah.HandleLogin)
	return router
}

func TestHandleSetup_OneShot(t *testing.T) {
	ts := newTestServices()
	router := newAuthRouter(t, ts)

	w := performRequest(router, http.MethodPost, "/setup", gin.H{
		"username": "root",
		"password": "correct horse battery staple",
	})
	assertStatusCode(t, w, http.StatusCreated)

	body := decodeBody(t, w)
	bootstrap := body["bootstrap_key"].(map[string]interface{})
	if bootstrap["secret"] == nil || bootstrap["secret"] == "" {
		t.Error("expected bootstrap secret in setup response")
	}
	scopesGranted := bootstrap["scopes"].([]interface{})
	if len(scopesGranted) != len(models.AllAdminScopes()) {
		t.Errorf("bootstrap key must hold the full admin scope set, got %v", scopesGranted)
	}

	// Setup refuses to run twice
	w = performRequest(router, http.MethodPost, "/setup", gin.H{
		"username": "intruder",
		"password": "another long password here",
	})
	assertStatusCode(t, w, http.StatusForbidden)
	assertJSONError(t, w, "already_configured")

	// Setup lands in the critical audit feed
	page, err := ts.audit.ByAction(context.Background(), models.ActionSetup, services.QueryOptions{})
	if err != nil {
		t.Fatalf("audit query failed: %v", err)
	}
	if len(page.Entries) != 1 {
		t.Errorf("expected 1 setup audit entry, got %d", len(page.Entries))
	}
}

func TestHandleSetup_WeakPassword(t *testing.T) {
	ts := newTestServices()
	router := newAuthRouter(t, ts)

	w := performRequest(router, http.MethodPost, "/setup", gin.H{
		"username": "root",
		"password": "short",
	})
	assertStatusCode(t, w, http.StatusBadRequest)
}

func TestHandleLogin(t *testing.T) {
	ts := newTestServices()
	router := newAuthRouter(t, ts)

	w := performRequest(router, http.MethodPost, "/setup", gin.H{
		"username": "root",
		"password": "correct horse battery staple",
	})
	assertStatusCode(t, w, http.StatusCreated)

	w = performRequest(router, http.MethodPost, "/api/auth/login", gin.H{
		"username": "root",
		"password": "correct horse battery staple",
	})
	assertStatusCode(t, w, http.StatusOK)
	body := decodeBody(t, w)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("expected session token in login response")
	}
	claims, err := middleware.ValidateAdminToken(token)
	if err != nil {
		t.Fatalf("issued token failed validation: %v", err)
	}
	if claims.Username != "root" {
		t.Errorf("expected claims for root, got %s", claims.Username)
	}

	// Session cookie is set
	cookieSet := false
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "admin_token" && cookie.Value != "" {
			cookieSet = true
		}
	}
	if !cookieSet {
		t.Error("expected admin_token cookie")
	}
}

func TestHandleLogin_Failure(t *testing.T) {
	ts := newTestServices()
	router := newAuthRouter(t, ts)

	w := performRequest(router, http.MethodPost, "/setup", gin.H{
		"username": "root",
		"password": "correct horse battery staple",
	})
	assertStatusCode(t, w, http.StatusCreated)

	w = performRequest(router, http.MethodPost, "/api/auth/login", gin.H{
		"username": "root",
		"password": "wrong password entirely",
	})
	assertStatusCode(t, w, http.StatusUnauthorized)
	assertJSONError(t, w, "invalid_credentials")

	page, err := ts.audit.ByAction(context.Background(), models.ActionAdminLoginFailed, services.QueryOptions{})
	if err != nil {
		t.Fatalf("audit query failed: %v", err)
	}
	if len(page.Entries) != 1 {
		t.Errorf("expected 1 failed-login audit entry, got %d", len(page.Entries))
	}
}
