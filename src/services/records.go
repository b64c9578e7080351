package services

import (
	"fmt"
	"time"
)

// Record key layout. Lexicographic order of index keys equals
// chronological order because timeKeys are fixed-width zero-padded
// millisecond timestamps.
const (
	keyPrefix        = "key:"
	lookupPrefix     = "lookup:"
	ownerIndexPrefix = "index:owner:"
	adminIndexPrefix = "index:admin:"
	adminUserPrefix  = "admin:user:"

	auditEntryPrefix = "log:admin:"
	// AuditByAdminPrefix and friends are the queryable audit dimensions
	AuditByAdminPrefix  = "log:admin:by_admin:"
	AuditByActionPrefix = "log:admin:by_action:"
	AuditByDatePrefix   = "log:admin:by_date:"
	AuditCriticalPrefix = "log:admin:critical:"
)

func keyRecord(id string) string {
	return keyPrefix + id
}

func lookupRecord(secret string) string {
	return lookupPrefix + secret
}

func ownerIndexRecord(owner, id string) string {
	return ownerIndexPrefix + owner + ":" + id
}

func adminIndexRecord(id string) string {
	return adminIndexPrefix + id
}

func adminUserRecord(username string) string {
	return adminUserPrefix + username
}

func auditEntryRecord(entryID string) string {
	return auditEntryPrefix + entryID
}

// timeKey makes index keys sort chronologically, with the entry id as a
// tiebreaker for entries in the same millisecond.
func timeKey(ts time.Time, entryID string) string {
	return fmt.Sprintf("%013d_%s", ts.UnixMilli(), entryID)
}
