package services

import (
	"context"
	"testing"

	"github.com/keymint/keymint-server/src/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAdminService_SetupFlow tests first-run account creation and the
// exists guard
func TestAdminService_SetupFlow(t *testing.T) {
	as := NewAdminService(store.NewMemory())
	ctx := context.Background()

	has, err := as.HasAdmins(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	admin, err := as.CreateAdminUser(ctx, "root", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, "root", admin.Username)
	assert.True(t, admin.IsActive)
	assert.NotEqual(t, "correct horse battery", admin.PasswordHash)

	has, err = as.HasAdmins(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	_, err = as.CreateAdminUser(ctx, "root", "another password")
	assert.ErrorIs(t, err, ErrAdminExists)
}

// TestAdminService_InputValidation tests username/password bounds
func TestAdminService_InputValidation(t *testing.T) {
	as := NewAdminService(store.NewMemory())
	ctx := context.Background()

	_, err := as.CreateAdminUser(ctx, "", "long enough password")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = as.CreateAdminUser(ctx, "root", "short")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// TestAdminService_Authenticate tests password verification
func TestAdminService_Authenticate(t *testing.T) {
	as := NewAdminService(store.NewMemory())
	ctx := context.Background()

	_, err := as.CreateAdminUser(ctx, "root", "correct horse battery")
	require.NoError(t, err)

	admin, err := as.AuthenticateAdmin(ctx, "root", "correct horse battery")
	require.NoError(t, err)
	assert.NotNil(t, admin.LastLogin)

	// Wrong password and unknown user are indistinguishable
	_, err = as.AuthenticateAdmin(ctx, "root", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = as.AuthenticateAdmin(ctx, "ghost", "correct horse battery")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
