package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint-server/src/store"
)

func TestHandleHealth(t *testing.T) {
	hh := NewHealthHandler(store.NewMemory())
	router := gin.New()
	router.GET("/health", hh.HandleHealth)
	router.GET("/ready", hh.HandleReady)

	w := performRequest(router, http.MethodGet, "/health", nil)
	assertStatusCode(t, w, http.StatusOK)
	body := decodeBody(t, w)
	if body["status"] != "ok" {
		t.Errorf("expected ok status, got %v", body["status"])
	}

	w = performRequest(router, http.MethodGet, "/ready", nil)
	assertStatusCode(t, w, http.StatusOK)
	body = decodeBody(t, w)
	if body["ready"] != true {
		t.Errorf("expected ready=true, got %v", body)
	}
}
