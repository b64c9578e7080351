package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/keymint/keymint-server/src/logging"
	"github.com/keymint/keymint-server/src/models"
	"github.com/keymint/keymint-server/src/scopes"
	"github.com/keymint/keymint-server/src/store"
	"github.com/rs/zerolog"
)

// SecretPrefix is prepended to every generated credential so leaked
// secrets are recognizable in logs and scanners.
const SecretPrefix = "km_"

// secretBytes gives 256 bits of entropy per credential
const secretBytes = 32

// usageUpdateTimeout bounds the detached last-used write
const usageUpdateTimeout = 5 * time.Second

// KeyServiceConfig holds lifecycle policy knobs
type KeyServiceConfig struct {
	// MinExpiryHorizon is the minimum distance in the future a
	// caller-supplied expiry must sit at creation time
	MinExpiryHorizon time.Duration
}

// KeyService manages the credential lifecycle: creation, validation
// with lazy expiration, revocation and bulk cleanup. All state lives in
// the injected store; the service itself owns no timers or goroutine
// loops.
type KeyService struct {
	store  store.Store
	config KeyServiceConfig
	logger zerolog.Logger

	// now is injectable for tests that simulate the clock
	now func() time.Time
}

// NewKeyService creates a new key service
func NewKeyService(st store.Store, config KeyServiceConfig) *KeyService {
	return &KeyService{
		store:  st,
		config: config,
		logger: logging.NewLogger("key_service"),
		now:    time.Now,
	}
}

// CreateKeyInput describes a key to create
type CreateKeyInput struct {
	Name      string            `json:"name"`
	Owner     string            `json:"owner"`
	Email     string            `json:"email"`
	Scopes    []string          `json:"scopes"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedBy string            `json:"created_by"`
	Metadata  map[string]string `json:"metadata"`
}

// CreateKey validates the input, generates a fresh id and secret and
// persists the metadata record, the secret lookup and the owner/admin
// indexes. The returned record carries the secret exactly once; it is
// never re-readable afterward.
func (ks *KeyService) CreateKey(ctx context.Context, in CreateKeyInput) (*models.Key, error) {
	if err := ks.validateCreateInput(in); err != nil {
		return nil, err
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	now := ks.now()
	key := &models.Key{
		ID:        uuid.NewString(),
		Secret:    secret,
		Name:      strings.TrimSpace(in.Name),
		Owner:     strings.TrimSpace(in.Owner),
		Email:     strings.TrimSpace(in.Email),
		Scopes:    normalizeScopes(in.Scopes),
		Status:    models.KeyStatusActive,
		CreatedAt: now,
		CreatedBy: in.CreatedBy,
		ExpiresAt: in.ExpiresAt,
		Metadata:  in.Metadata,
	}

	if err := ks.persistNewKey(ctx, key); err != nil {
		return nil, err
	}

	ks.logger.Info().
		Str("key_id", key.ID).
		Str("owner", key.Owner).
		Strs("scopes", key.Scopes).
		Msg("key created")

	return key, nil
}

func (ks *KeyService) validateCreateInput(in CreateKeyInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(in.Name) > 255 {
		return fmt.Errorf("%w: name must be at most 255 characters", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Owner) == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if len(in.Scopes) == 0 {
		return fmt.Errorf("%w: at least one scope is required", ErrInvalidInput)
	}
	for _, s := range in.Scopes {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: scopes must be non-empty", ErrInvalidInput)
		}
	}
	if !in.ExpiresAt.IsZero() {
		horizon := ks.now().Add(ks.config.MinExpiryHorizon)
		if in.ExpiresAt.Before(horizon) {
			return fmt.Errorf("%w: expiry must be at least %s in the future",
				ErrInvalidInput, ks.config.MinExpiryHorizon)
		}
	}
	return nil
}

// persistNewKey writes the metadata record, the secret lookup and the
// indexes. It uses the store's transaction capability when available
// and degrades to sequential best-effort writes otherwise, in which
// case a partial failure is recoverable only by the cleanup sweep or
// manual remediation.
func (ks *KeyService) persistNewKey(ctx context.Context, key *models.Key) error {
	metadata, err := json.Marshal(key.Sanitized())
	if err != nil {
		return fmt.Errorf("failed to encode key: %w", err)
	}

	isAdmin := scopes.HasAdminScope(key.Scopes, models.AdminScopeNamespace)

	if txStore, ok := ks.store.(store.Transactional); ok {
		tx, err := txStore.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := tx.Put(keyRecord(key.ID), metadata); err != nil {
			return err
		}
		if err := tx.Put(lookupRecord(key.Secret), []byte(key.ID)); err != nil {
			return err
		}
		if err := tx.Put(ownerIndexRecord(key.Owner, key.ID), []byte(key.ID)); err != nil {
			return err
		}
		if isAdmin {
			if err := tx.Put(adminIndexRecord(key.ID), []byte(key.ID)); err != nil {
				return err
			}
		}
		return tx.Commit(ctx)
	}

	if err := ks.store.Put(ctx, keyRecord(key.ID), metadata); err != nil {
		return err
	}
	if err := ks.store.Put(ctx, lookupRecord(key.Secret), []byte(key.ID)); err != nil {
		return err
	}
	if err := ks.store.Put(ctx, ownerIndexRecord(key.Owner, key.ID), []byte(key.ID)); err != nil {
		return err
	}
	if isAdmin {
		if err := ks.store.Put(ctx, adminIndexRecord(key.ID), []byte(key.ID)); err != nil {
			return err
		}
	}
	return nil
}

// Validation failure reasons carried on ValidationResult
const (
	ReasonNotFound          = "not_found"
	ReasonInactive          = "inactive"
	ReasonExpired           = "expired"
	ReasonInsufficientScope = "insufficient_scope"
)

// ValidationResult is the structured outcome of ValidateKey. Expected
// failures (bad secret, missing scope) land here instead of in the
// error return, so callers branch without unwinding.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`

	Key            *models.Key `json:"key,omitempty"`
	GrantedScopes  []string    `json:"granted_scopes,omitempty"`
	RequiredScopes []string    `json:"required_scopes,omitempty"`
	MissingScopes  []string    `json:"missing_scopes,omitempty"`

	// Rotated advises the caller to switch to the successor secret
	// before the grace window closes
	Rotated     bool   `json:"rotated,omitempty"`
	SuccessorID string `json:"successor_id,omitempty"`
}

// ValidateKey resolves a secret, checks the key's lifecycle state and
// evaluates every required scope. Expiry is detected lazily here and
// auto-revokes the record. On success a detached, non-blocking write
// bumps last_used_at; its failure is logged and never surfaced.
func (ks *KeyService) ValidateKey(ctx context.Context, secret string, requiredScopes []string) (*ValidationResult, error) {
	id, err := ks.resolveSecret(ctx, secret)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &ValidationResult{Valid: false, Reason: ReasonNotFound}, nil
		}
		return nil, err
	}

	key, err := ks.loadKey(ctx, id)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			// Lookup without metadata: partial write remnants
			return &ValidationResult{Valid: false, Reason: ReasonNotFound}, nil
		}
		return nil, err
	}

	now := ks.now()
	inGrace := key.InGraceWindow(now)

	if !key.IsActive() && !inGrace {
		return &ValidationResult{Valid: false, Reason: ReasonInactive}, nil
	}

	if key.Status == models.KeyStatusActive && key.Expired(now) {
		// Lazy expiration: revoke as a side effect of detection
		if _, _, err := ks.RevokeKey(ctx, key.ID, "system", models.RevokeReasonExpired); err != nil {
			ks.logger.Error().Err(err).Str("key_id", key.ID).Msg("failed to revoke expired key")
		}
		return &ValidationResult{Valid: false, Reason: ReasonExpired}, nil
	}

	granted := scopes.ParseAll(key.Scopes)
	required := scopes.ParseAll(requiredScopes)
	missing := scopes.GrantsAll(granted, required)
	if len(missing) > 0 {
		return &ValidationResult{
			Valid:          false,
			Reason:         ReasonInsufficientScope,
			GrantedScopes:  key.Scopes,
			RequiredScopes: requiredScopes,
			MissingScopes:  missing,
		}, nil
	}

	ks.touchLastUsed(key.ID, now)

	result := &ValidationResult{
		Valid:         true,
		Key:           key.Sanitized(),
		GrantedScopes: key.Scopes,
	}
	if inGrace {
		result.Rotated = true
		result.SuccessorID = key.SuccessorID
	}
	return result, nil
}

// touchLastUsed schedules the last_used_at bump on a detached context
// so a caller cancellation cannot drop or block it. last_used_at is
// kept non-decreasing; a lost update is acceptable (last-write-wins).
func (ks *KeyService) touchLastUsed(id string, usedAt time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), usageUpdateTimeout)
		defer cancel()

		key, err := ks.loadKey(ctx, id)
		if err != nil {
			ks.logger.Error().Err(err).Str("key_id", id).Msg("failed to load key for usage update")
			return
		}
		if key.LastUsedAt != nil && !usedAt.After(*key.LastUsedAt) {
			return
		}
		key.LastUsedAt = &usedAt
		if err := ks.saveKey(ctx, key); err != nil {
			ks.logger.Error().Err(err).Str("key_id", id).Msg("failed to update last_used_at")
		}
	}()
}

// GetKey loads a key's metadata by id. The secret is never included.
func (ks *KeyService) GetKey(ctx context.Context, id string) (*models.Key, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: key id is required", ErrInvalidInput)
	}
	return ks.loadKey(ctx, id)
}

// ListKeys returns keys by offset pagination, newest ids last in store
// order. Kept for the legacy admin surface; cursor pagination is the
// stable form.
func (ks *KeyService) ListKeys(ctx context.Context, limit, offset int) ([]*models.Key, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var keys []*models.Key
	cursor := ""
	skipped := 0
	for {
		page, err := ks.store.List(ctx, store.ListOptions{Prefix: keyPrefix, Cursor: cursor, Limit: 100})
		if err != nil {
			return nil, err
		}
		for _, recordKey := range page.Keys {
			if skipped < offset {
				skipped++
				continue
			}
			if len(keys) == limit {
				return keys, nil
			}
			key, err := ks.loadKey(ctx, strings.TrimPrefix(recordKey, keyPrefix))
			if err != nil {
				if errors.Is(err, ErrKeyNotFound) {
					continue
				}
				return nil, err
			}
			keys = append(keys, key)
		}
		if !page.HasMore || len(keys) == limit {
			return keys, nil
		}
		cursor = page.Cursor
	}
}

// KeyPage is one cursor-paginated page of keys
type KeyPage struct {
	Keys    []*models.Key `json:"keys"`
	Cursor  string        `json:"cursor,omitempty"`
	HasMore bool          `json:"has_more"`
}

// ListKeysWithCursor pages through keys with an opaque last-seen-key
// cursor, stable under concurrent creation. Records whose metadata is
// missing are silently skipped. includeRotated=false filters rotated
// keys out of the page after resolution.
func (ks *KeyService) ListKeysWithCursor(ctx context.Context, limit int, cursor string, includeRotated bool) (*KeyPage, error) {
	if limit <= 0 {
		limit = 50
	}

	page, err := ks.store.List(ctx, store.ListOptions{Prefix: keyPrefix, Cursor: cursor, Limit: limit})
	if err != nil {
		return nil, err
	}

	result := &KeyPage{HasMore: page.HasMore, Cursor: page.Cursor}
	for _, recordKey := range page.Keys {
		key, err := ks.loadKey(ctx, strings.TrimPrefix(recordKey, keyPrefix))
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		if !includeRotated && key.Status == models.KeyStatusRotated {
			continue
		}
		result.Keys = append(result.Keys, key)
	}
	if !page.HasMore {
		result.Cursor = ""
	}
	return result, nil
}

// RevokeKey marks a key revoked. Idempotent: revoking an already
// revoked key succeeds without mutation, and the changed return lets
// callers skip audit noise for the no-op case.
func (ks *KeyService) RevokeKey(ctx context.Context, id, actor, reason string) (key *models.Key, changed bool, err error) {
	key, err = ks.loadKey(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if key.Status == models.KeyStatusRevoked {
		return key, false, nil
	}

	now := ks.now()
	key.Status = models.KeyStatusRevoked
	key.RevokedAt = &now
	key.RevokedBy = actor
	key.RevokedReason = reason

	if err := ks.saveKey(ctx, key); err != nil {
		return nil, false, err
	}

	ks.logger.Info().
		Str("key_id", key.ID).
		Str("actor", actor).
		Str("reason", reason).
		Msg("key revoked")

	return key, true, nil
}

// RevokeKeysByOwner revokes every key in the owner index, returning how
// many were actually flipped. Already-revoked keys and stale index
// entries are skipped.
func (ks *KeyService) RevokeKeysByOwner(ctx context.Context, owner, actor, reason string) (int, error) {
	if strings.TrimSpace(owner) == "" {
		return 0, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}

	prefix := ownerIndexPrefix + owner + ":"
	revoked := 0
	cursor := ""
	for {
		page, err := ks.store.List(ctx, store.ListOptions{Prefix: prefix, Cursor: cursor, Limit: 100})
		if err != nil {
			return revoked, err
		}
		for _, indexKey := range page.Keys {
			id := strings.TrimPrefix(indexKey, prefix)
			_, changed, err := ks.RevokeKey(ctx, id, actor, reason)
			if err != nil {
				if errors.Is(err, ErrKeyNotFound) {
					continue
				}
				return revoked, err
			}
			if changed {
				revoked++
			}
		}
		if !page.HasMore {
			break
		}
		cursor = page.Cursor
	}

	ks.logger.Info().
		Str("owner", owner).
		Str("actor", actor).
		Int("revoked", revoked).
		Msg("bulk revocation by owner")

	return revoked, nil
}

// CleanupResult counts revocations by category for one sweep
type CleanupResult struct {
	ExpiredKeys      int `json:"expired_keys"`
	ExpiredRotations int `json:"expired_rotations"`
}

// CleanupExpiredKeys sweeps every key, revoking active keys past their
// expiry and rotated keys past their grace deadline. Safe to run
// concurrently with validate/revoke; conflicting writers resolve by
// last-write-wins.
func (ks *KeyService) CleanupExpiredKeys(ctx context.Context) (CleanupResult, error) {
	result := CleanupResult{}
	now := ks.now()

	cursor := ""
	for {
		page, err := ks.store.List(ctx, store.ListOptions{Prefix: keyPrefix, Cursor: cursor, Limit: 100})
		if err != nil {
			return result, err
		}
		for _, recordKey := range page.Keys {
			key, err := ks.loadKey(ctx, strings.TrimPrefix(recordKey, keyPrefix))
			if err != nil {
				if errors.Is(err, ErrKeyNotFound) {
					continue
				}
				return result, err
			}

			switch {
			case key.Status == models.KeyStatusActive && key.Expired(now):
				if _, changed, err := ks.RevokeKey(ctx, key.ID, "system", models.RevokeReasonExpired); err != nil {
					ks.logger.Error().Err(err).Str("key_id", key.ID).Msg("cleanup: failed to revoke expired key")
				} else if changed {
					result.ExpiredKeys++
				}
			case key.Status == models.KeyStatusRotated && key.GraceExpiresAt != nil && !now.Before(*key.GraceExpiresAt):
				if _, changed, err := ks.RevokeKey(ctx, key.ID, "system", models.RevokeReasonRotationExpired); err != nil {
					ks.logger.Error().Err(err).Str("key_id", key.ID).Msg("cleanup: failed to revoke rotated key")
				} else if changed {
					result.ExpiredRotations++
				}
			}
		}
		if !page.HasMore {
			break
		}
		cursor = page.Cursor
	}

	return result, nil
}

func (ks *KeyService) resolveSecret(ctx context.Context, secret string) (string, error) {
	id, err := ks.store.Get(ctx, lookupRecord(secret))
	if err != nil {
		return "", err
	}
	return string(id), nil
}

func (ks *KeyService) loadKey(ctx context.Context, id string) (*models.Key, error) {
	raw, err := ks.store.Get(ctx, keyRecord(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	var key models.Key
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("failed to decode key %s: %w", id, err)
	}
	return &key, nil
}

func (ks *KeyService) saveKey(ctx context.Context, key *models.Key) error {
	raw, err := json.Marshal(key.Sanitized())
	if err != nil {
		return fmt.Errorf("failed to encode key: %w", err)
	}
	return ks.store.Put(ctx, keyRecord(key.ID), raw)
}

// generateSecret produces the opaque credential: prefix plus 64 hex
// characters (256 bits of entropy).
func generateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return SecretPrefix + hex.EncodeToString(raw), nil
}

func normalizeScopes(raw []string) []string {
	normalized := make([]string, 0, len(raw))
	for _, s := range raw {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(s)))
	}
	return normalized
}
