package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint-server/src/services"
	"github.com/keymint/keymint-server/src/store"
)

// Test helpers for handler tests

// testServices bundles the service layer over a shared memory store
type testServices struct {
	store    *store.MemoryStore
	keys     *services.KeyService
	rotation *services.RotationService
	audit    *services.AuditService
	admins   *services.AdminService
}

func newTestServices() *testServices {
	st := store.NewMemory()
	keys := services.NewKeyService(st, services.KeyServiceConfig{MinExpiryHorizon: time.Minute})
	return &testServices{
		store:    st,
		keys:     keys,
		rotation: services.NewRotationService(keys, services.RotationConfig{}),
		audit:    services.NewAuditService(st),
		admins:   services.NewAdminService(st),
	}
}

// performRequest runs one request through a router and records the response
func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeBody unmarshals a JSON response body into a map
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return response
}

// assertStatusCode checks if response status code matches expected
func assertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expectedCode int) {
	t.Helper()
	if w.Code != expectedCode {
		t.Errorf("expected status %d, got %d: %s", expectedCode, w.Code, w.Body.String())
	}
}

// assertJSONError checks if response contains expected error code
func assertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedError string) {
	t.Helper()
	response := decodeBody(t, w)
	if response["error"] != expectedError {
		t.Errorf("expected error '%s', got '%v'", expectedError, response["error"])
	}
}

func init() {
	gin.SetMode(gin.TestMode)
}
