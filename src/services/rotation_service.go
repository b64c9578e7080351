package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/keymint/keymint-server/src/logging"
	"github.com/keymint/keymint-server/src/models"
	"github.com/rs/zerolog"
)

// RotationConfig bounds the dual-validity grace window
type RotationConfig struct {
	DefaultGraceDays int
	MaxGraceDays     int
}

// RotationService supersedes keys with fresh credentials while keeping
// the old secret valid for a bounded grace window.
type RotationService struct {
	keys   *KeyService
	config RotationConfig
	logger zerolog.Logger

	now func() time.Time
}

// NewRotationService creates a new rotation service
func NewRotationService(keys *KeyService, config RotationConfig) *RotationService {
	if config.DefaultGraceDays == 0 {
		config.DefaultGraceDays = 7
	}
	if config.MaxGraceDays == 0 {
		config.MaxGraceDays = 90
	}
	return &RotationService{
		keys:   keys,
		config: config,
		logger: logging.NewLogger("rotation_service"),
		now:    time.Now,
	}
}

// RotateOptions overrides fields on the successor key. Unset fields are
// inherited from the original.
type RotateOptions struct {
	GracePeriodDays *int       `json:"grace_period_days"`
	Scopes          []string   `json:"scopes"`
	Name            string     `json:"name"`
	ExpiresAt       *time.Time `json:"expires_at"`
	RotatedBy       string     `json:"rotated_by"`
}

// RotationResult carries the successor (with its one-time secret) and
// the superseded original.
type RotationResult struct {
	NewKey *models.Key `json:"new_key"`
	OldKey *models.Key `json:"old_key"`
}

// RotateKey creates a successor key inheriting unspecified fields from
// the original, marks the original rotated with a grace deadline and
// links the two records. During the grace window both secrets validate.
func (rs *RotationService) RotateKey(ctx context.Context, id string, opts RotateOptions) (*RotationResult, error) {
	original, err := rs.keys.loadKey(ctx, id)
	if err != nil {
		return nil, err
	}
	if original.Status == models.KeyStatusRevoked {
		// Terminally revoked keys are not rotatable
		return nil, ErrKeyNotFound
	}
	if original.Status == models.KeyStatusRotated {
		return nil, fmt.Errorf("%w: key %s was already rotated", ErrInvalidInput, id)
	}

	graceDays := rs.config.DefaultGraceDays
	if opts.GracePeriodDays != nil {
		graceDays = *opts.GracePeriodDays
	}
	if graceDays < 0 || graceDays > rs.config.MaxGraceDays {
		return nil, fmt.Errorf("%w: grace period must be between 0 and %d days",
			ErrInvalidInput, rs.config.MaxGraceDays)
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	now := rs.now()
	successor := &models.Key{
		ID:            uuid.NewString(),
		Secret:        secret,
		Name:          original.Name,
		Owner:         original.Owner,
		Email:         original.Email,
		Scopes:        original.Scopes,
		Status:        models.KeyStatusActive,
		CreatedAt:     now,
		CreatedBy:     opts.RotatedBy,
		ExpiresAt:     original.ExpiresAt,
		Metadata:      original.Metadata,
		PredecessorID: original.ID,
	}
	if opts.Name != "" {
		successor.Name = opts.Name
	}
	if len(opts.Scopes) > 0 {
		successor.Scopes = normalizeScopes(opts.Scopes)
	}
	if opts.ExpiresAt != nil {
		successor.ExpiresAt = *opts.ExpiresAt
	}

	if err := rs.keys.persistNewKey(ctx, successor); err != nil {
		return nil, err
	}

	graceExpires := now.Add(time.Duration(graceDays) * 24 * time.Hour)
	original.Status = models.KeyStatusRotated
	original.SuccessorID = successor.ID
	original.GraceExpiresAt = &graceExpires

	if err := rs.keys.saveKey(ctx, original); err != nil {
		return nil, err
	}

	rs.logger.Info().
		Str("key_id", original.ID).
		Str("successor_id", successor.ID).
		Int("grace_days", graceDays).
		Str("actor", opts.RotatedBy).
		Msg("key rotated")

	return &RotationResult{NewKey: successor, OldKey: original.Sanitized()}, nil
}
