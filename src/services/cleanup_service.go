package services

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/keymint/keymint-server/src/logging"
	"github.com/keymint/keymint-server/src/models"
	"github.com/rs/zerolog"
)

// CleanupService drives the periodic expiry sweep. The key service
// itself owns no timers; this wrapper invokes CleanupExpiredKeys on a
// schedule and records an audit entry when a sweep revoked anything.
type CleanupService struct {
	keys     *KeyService
	audit    *AuditService
	enabled  bool
	interval time.Duration
	logger   zerolog.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(keys *KeyService, audit *AuditService, enabled bool, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupService{
		keys:     keys,
		audit:    audit,
		enabled:  enabled,
		interval: interval,
		logger:   logging.NewLogger("cleanup_service"),
		done:     make(chan struct{}),
	}
}

// Start starts the cleanup loop
func (cs *CleanupService) Start(ctx context.Context) {
	if !cs.enabled {
		cs.logger.Info().Msg("cleanup service is disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				cs.logger.Info().Msg("cleanup service stopped")
				return
			case <-cs.done:
				cs.logger.Info().Msg("cleanup service stopped")
				return
			case <-ticker.C:
				cs.sweep(ctx)
			}
		}
	}()

	cs.logger.Info().Dur("interval", cs.interval).Msg("cleanup service started")
}

// Stop stops the cleanup loop. Closing the channel means the signal
// is not lost while the loop is mid-sweep; safe to call repeatedly
// and when the loop never started.
func (cs *CleanupService) Stop() {
	cs.stopOnce.Do(func() {
		close(cs.done)
	})
}

func (cs *CleanupService) sweep(ctx context.Context) {
	result, err := cs.keys.CleanupExpiredKeys(ctx)
	if err != nil {
		cs.logger.Error().Err(err).Msg("cleanup sweep failed")
		return
	}
	if result.ExpiredKeys == 0 && result.ExpiredRotations == 0 {
		return
	}

	cs.logger.Info().
		Int("expired_keys", result.ExpiredKeys).
		Int("expired_rotations", result.ExpiredRotations).
		Msg("cleanup sweep completed")

	if _, err := cs.audit.Append(ctx, "system", models.ActionCleanupExecuted, map[string]string{
		"expired_keys":      strconv.Itoa(result.ExpiredKeys),
		"expired_rotations": strconv.Itoa(result.ExpiredRotations),
	}, AuditMeta{}); err != nil {
		cs.logger.Error().Err(err).Msg("failed to record cleanup audit entry")
	}
}
