package models

import "time"

// AuditLogEntry is an append-only record of a sensitive action. Entries are
// write-only from the application's perspective and pruned by a background
// sweep after the retention window.
type AuditLogEntry struct {
	ID        string
	UserID    *string
	Action    string
	TableName string
	RecordID  string
	OldValues []byte
	NewValues []byte
	IPAddress string
	UserAgent string
	CreatedAt time.Time

	Username string
	FullName string
}

// AuditFilter narrows audit log listings.
type AuditFilter struct {
	UserID    string
	Action    string
	TableName string
	DateFrom  *time.Time
	DateTo    *time.Time
}

// AuditStats summarises the audit trail.
type AuditStats struct {
	TotalEntries int
	TotalUsers   int
	TotalActions int
	FirstEntry   *time.Time
	LastEntry    *time.Time
	TopActions   []ActionCount
}

type ActionCount struct {
	Action string
	Count  int
}
