package services

import (
	"context"
	"testing"
	"time"

	"github.com/keymint/keymint-server/src/models"
)

// TestCleanupService_StopHaltsSweeps tests that Stop takes effect even
// when it races the loop, and that repeated Stop calls are safe
func TestCleanupService_StopHaltsSweeps(t *testing.T) {
	ks, st := newTestKeyService()
	as := NewAuditService(st)
	cs := NewCleanupService(ks, as, true, 5*time.Millisecond)

	key := mustCreateKey(t, ks, CreateKeyInput{
		Name: "short-lived", Owner: "o", Scopes: []string{"a:b"},
		ExpiresAt: time.Now().Add(time.Hour),
	})
	ks.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	cs.Start(context.Background())
	cs.Stop()
	cs.Stop() // repeat call must not panic

	// Give any straggling tick time to fire; the stopped loop must not
	// sweep the expired key
	time.Sleep(30 * time.Millisecond)

	loaded, err := ks.GetKey(context.Background(), key.ID)
	if err != nil {
		t.Fatalf("GetKey failed: %v", err)
	}
	if loaded.Status != models.KeyStatusActive {
		t.Errorf("expected key untouched after Stop, got status %s", loaded.Status)
	}
}

// TestCleanupService_DisabledNeverStarts tests that a disabled service
// tolerates Stop without a running loop
func TestCleanupService_DisabledNeverStarts(t *testing.T) {
	ks, st := newTestKeyService()
	as := NewAuditService(st)
	cs := NewCleanupService(ks, as, false, time.Hour)

	cs.Start(context.Background())
	cs.Stop()
}
