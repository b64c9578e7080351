package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint-server/src/services"
)

func newValidateRouter(ts *testServices) *gin.Engine {
	vh := NewValidateHandler(ts.keys)
	router := gin.New()
	router.POST("/api/validate", vh.HandleValidate)
	return router
}

func TestHandleValidate_Success(t *testing.T) {
	ts := newTestServices()
	router := newValidateRouter(ts)

	created, err := ts.keys.CreateKey(context.Background(), services.CreateKeyInput{
		Name: "integration", Owner: "acme", Scopes: []string{"reports:read", "reports:export"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	w := performRequest(router, http.MethodPost, "/api/validate", gin.H{
		"secret": created.Secret,
		"scopes": []string{"reports:read"},
	})
	assertStatusCode(t, w, http.StatusOK)
	body := decodeBody(t, w)
	if body["valid"] != true {
		t.Fatalf("expected valid=true, got %v", body)
	}
	if body["key_id"] != created.ID {
		t.Errorf("expected key_id %s, got %v", created.ID, body["key_id"])
	}
	if body["owner"] != "acme" {
		t.Errorf("expected owner acme, got %v", body["owner"])
	}
}

// TestHandleValidate_UniformFailure verifies the endpoint cannot be
// used to probe which credentials exist: unknown, revoked and
// under-scoped secrets all produce the same body.
func TestHandleValidate_UniformFailure(t *testing.T) {
	ts := newTestServices()
	router := newValidateRouter(ts)

	created, err := ts.keys.CreateKey(context.Background(), services.CreateKeyInput{
		Name: "limited", Owner: "acme", Scopes: []string{"reports:read"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	revoked, err := ts.keys.CreateKey(context.Background(), services.CreateKeyInput{
		Name: "dead", Owner: "acme", Scopes: []string{"reports:read"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, _, err := ts.keys.RevokeKey(context.Background(), revoked.ID, "test", "test"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	cases := []gin.H{
		{"secret": "km_" + "0000000000000000000000000000000000000000000000000000000000000000"},
		{"secret": revoked.Secret},
		{"secret": created.Secret, "scopes": []string{"reports:admin"}},
	}
	for i, reqBody := range cases {
		w := performRequest(router, http.MethodPost, "/api/validate", reqBody)
		assertStatusCode(t, w, http.StatusOK)
		body := decodeBody(t, w)
		if body["valid"] != false {
			t.Errorf("case %d: expected valid=false, got %v", i, body)
		}
		if len(body) != 1 {
			t.Errorf("case %d: failure body must carry only the valid flag, got %v", i, body)
		}
	}
}

func TestHandleValidate_RotationAdvisory(t *testing.T) {
	ts := newTestServices()
	router := newValidateRouter(ts)

	created, err := ts.keys.CreateKey(context.Background(), services.CreateKeyInput{
		Name: "rotating", Owner: "acme", Scopes: []string{"reports:read"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	result, err := ts.rotation.RotateKey(context.Background(), created.ID, services.RotateOptions{RotatedBy: "test"})
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}

	w := performRequest(router, http.MethodPost, "/api/validate", gin.H{"secret": created.Secret})
	assertStatusCode(t, w, http.StatusOK)
	body := decodeBody(t, w)
	if body["valid"] != true {
		t.Fatalf("old secret must stay valid in the grace window, got %v", body)
	}
	if body["rotated"] != true {
		t.Error("expected rotation advisory on old secret")
	}
	if body["successor_id"] != result.NewKey.ID {
		t.Errorf("expected successor %s, got %v", result.NewKey.ID, body["successor_id"])
	}
}

func TestHandleValidate_MissingSecret(t *testing.T) {
	ts := newTestServices()
	router := newValidateRouter(ts)

	w := performRequest(router, http.MethodPost, "/api/validate", gin.H{})
	assertStatusCode(t, w, http.StatusBadRequest)
}
