package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/keymint/keymint-server/src/logging"
	"github.com/keymint/keymint-server/src/models"
	"github.com/keymint/keymint-server/src/store"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// AdminService handles dashboard administrator accounts: the one-time
// setup flow and password authentication.
type AdminService struct {
	store  store.Store
	logger zerolog.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(st store.Store) *AdminService {
	return &AdminService{store: st, logger: logging.NewLogger("admin_service")}
}

// CreateAdminUser creates a new admin account with a bcrypt-hashed
// password.
func (as *AdminService) CreateAdminUser(ctx context.Context, username, password string) (*models.AdminUser, error) {
	if len(username) < 1 || len(username) > 255 {
		return nil, fmt.Errorf("%w: username must be between 1 and 255 characters", ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	if _, err := as.store.Get(ctx, adminUserRecord(username)); err == nil {
		return nil, ErrAdminExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &models.AdminUser{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
		IsActive:     true,
	}
	if err := as.saveAdmin(ctx, admin); err != nil {
		return nil, err
	}

	as.logger.Info().Str("username", username).Msg("admin user created")
	return admin, nil
}

// HasAdmins reports whether any admin account exists; the setup flow is
// refused once one does.
func (as *AdminService) HasAdmins(ctx context.Context) (bool, error) {
	page, err := as.store.List(ctx, store.ListOptions{Prefix: adminUserPrefix, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(page.Keys) > 0, nil
}

// AuthenticateAdmin verifies username and password. A missing account
// and a wrong password are indistinguishable to the caller.
func (as *AdminService) AuthenticateAdmin(ctx context.Context, username, password string) (*models.AdminUser, error) {
	admin, err := as.loadAdmin(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !admin.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	admin.LastLogin = &now
	if err := as.saveAdmin(ctx, admin); err != nil {
		// Login still succeeds; the timestamp is advisory
		as.logger.Warn().Err(err).Str("username", username).Msg("failed to update last_login")
	}

	return admin, nil
}

// adminRecord is the stored form; the model hides the password hash
// from JSON so the persisted shape is explicit here.
type adminRecord struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"password_hash"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	IsActive     bool       `json:"is_active"`
}

func (as *AdminService) loadAdmin(ctx context.Context, username string) (*models.AdminUser, error) {
	raw, err := as.store.Get(ctx, adminUserRecord(username))
	if err != nil {
		return nil, err
	}
	var record adminRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to decode admin user: %w", err)
	}
	return &models.AdminUser{
		ID:           record.ID,
		Username:     record.Username,
		PasswordHash: record.PasswordHash,
		CreatedAt:    record.CreatedAt,
		LastLogin:    record.LastLogin,
		IsActive:     record.IsActive,
	}, nil
}

func (as *AdminService) saveAdmin(ctx context.Context, admin *models.AdminUser) error {
	raw, err := json.Marshal(adminRecord{
		ID:           admin.ID,
		Username:     admin.Username,
		PasswordHash: admin.PasswordHash,
		CreatedAt:    admin.CreatedAt,
		LastLogin:    admin.LastLogin,
		IsActive:     admin.IsActive,
	})
	if err != nil {
		return fmt.Errorf("failed to encode admin user: %w", err)
	}
	return as.store.Put(ctx, adminUserRecord(admin.Username), raw)
}
