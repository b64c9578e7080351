package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/keymint/keymint-server/src/logging"
	"github.com/keymint/keymint-server/src/models"
	"github.com/keymint/keymint-server/src/store"
	"github.com/rs/zerolog"
)

// AuditService appends immutable administrative audit entries and
// serves indexed, cursor-paginated queries. Every entry is written once
// under its canonical record and pointed to by time-ordered secondary
// indexes per dimension (actor, action, calendar date, criticality).
type AuditService struct {
	store  store.Store
	logger zerolog.Logger

	now func() time.Time
}

// NewAuditService creates a new audit service
func NewAuditService(st store.Store) *AuditService {
	return &AuditService{
		store:  st,
		logger: logging.NewLogger("audit_service"),
		now:    time.Now,
	}
}

// AuditMeta carries request context for an entry
type AuditMeta struct {
	IP        string
	UserAgent string
}

// Append writes the canonical entry, then its secondary index pointers.
// Index writes are best-effort and additive: a failed index write is
// logged and never rolls back the primary entry, trading completeness
// of one query dimension for availability of the record itself.
func (as *AuditService) Append(ctx context.Context, adminID, action string, details map[string]string, meta AuditMeta) (string, error) {
	entry := &models.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: as.now(),
		AdminID:   adminID,
		Action:    action,
		Details:   details,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to encode audit entry: %w", err)
	}
	if err := as.store.Put(ctx, auditEntryRecord(entry.ID), raw); err != nil {
		return "", err
	}

	tk := timeKey(entry.Timestamp, entry.ID)
	indexes := []string{
		AuditByAdminPrefix + adminID + ":" + tk,
		AuditByActionPrefix + action + ":" + tk,
		AuditByDatePrefix + entry.Timestamp.UTC().Format("2006-01-02") + ":" + tk,
	}
	if models.IsCriticalAction(action) {
		indexes = append(indexes, AuditCriticalPrefix+tk)
	}

	for _, indexKey := range indexes {
		if err := as.store.Put(ctx, indexKey, []byte(entry.ID)); err != nil {
			as.logger.Warn().Err(err).
				Str("entry_id", entry.ID).
				Str("index_key", indexKey).
				Msg("failed to write audit index")
		}
	}

	return entry.ID, nil
}

// QueryOptions selects one page of an audit dimension
type QueryOptions struct {
	Limit  int
	Cursor string
}

// AuditPage is one page of entries. Cursor is the last index key
// visited; passing it back resumes strictly after that position, so
// pages stay stable as new entries are appended ahead of it.
type AuditPage struct {
	Entries []*models.AuditEntry `json:"entries"`
	Cursor  string               `json:"cursor,omitempty"`
	HasMore bool                 `json:"has_more"`
}

// Query lists index pointers under a dimension prefix and resolves each
// to its canonical entry. Pointers whose canonical record is missing
// are silently dropped (tombstone tolerance).
func (as *AuditService) Query(ctx context.Context, dimensionPrefix string, opts QueryOptions) (*AuditPage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	page, err := as.store.List(ctx, store.ListOptions{
		Prefix: dimensionPrefix,
		Cursor: opts.Cursor,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}

	result := &AuditPage{HasMore: page.HasMore}
	for _, indexKey := range page.Keys {
		entryID, ok := entryIDFromIndexKey(indexKey)
		if !ok {
			as.logger.Warn().Str("index_key", indexKey).Msg("malformed audit index key")
			continue
		}
		entry, err := as.loadEntry(ctx, entryID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		result.Entries = append(result.Entries, entry)
	}
	if len(page.Keys) > 0 {
		result.Cursor = page.Keys[len(page.Keys)-1]
	}
	return result, nil
}

// ByAdmin pages entries recorded for one actor
func (as *AuditService) ByAdmin(ctx context.Context, adminID string, opts QueryOptions) (*AuditPage, error) {
	return as.Query(ctx, AuditByAdminPrefix+adminID+":", opts)
}

// ByAction pages entries of one action type
func (as *AuditService) ByAction(ctx context.Context, action string, opts QueryOptions) (*AuditPage, error) {
	return as.Query(ctx, AuditByActionPrefix+action+":", opts)
}

// ByDate pages entries for one UTC calendar date (2006-01-02)
func (as *AuditService) ByDate(ctx context.Context, date string, opts QueryOptions) (*AuditPage, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("%w: date must be yyyy-mm-dd", ErrInvalidInput)
	}
	return as.Query(ctx, AuditByDatePrefix+date+":", opts)
}

// Critical pages entries classified as critical actions
func (as *AuditService) Critical(ctx context.Context, opts QueryOptions) (*AuditPage, error) {
	return as.Query(ctx, AuditCriticalPrefix, opts)
}

func (as *AuditService) loadEntry(ctx context.Context, entryID string) (*models.AuditEntry, error) {
	raw, err := as.store.Get(ctx, auditEntryRecord(entryID))
	if err != nil {
		return nil, err
	}
	var entry models.AuditEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode audit entry %s: %w", entryID, err)
	}
	return &entry, nil
}

// entryIDFromIndexKey extracts the entry id from a
// <dimension>:<timestamp>_<entryId> index key.
func entryIDFromIndexKey(indexKey string) (string, bool) {
	i := strings.LastIndex(indexKey, "_")
	if i < 0 || i == len(indexKey)-1 {
		return "", false
	}
	return indexKey[i+1:], true
}
