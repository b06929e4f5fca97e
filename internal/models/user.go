package models

import "time"

type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleOperator UserRole = "operator"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
	UserStatusDeleted  UserStatus = "deleted"
)

// User is an identity record. Users are never physically deleted; the
// status transitions to deleted instead.
type User struct {
	ID           string
	Username     string
	PasswordHash []byte
	Email        string
	FullName     string
	ProfilePhoto *string
	Role         UserRole
	Status       UserStatus
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is one authenticated device/browser instance. A session
// authenticates requests only while IsActive is true and ExpiresAt lies in
// the future; a verified token signature alone is never sufficient.
type Session struct {
	ID           string
	UserID       string
	SessionToken string
	RefreshToken string
	DeviceInfo   string
	IPAddress    string
	UserAgent    string
	IsActive     bool
	ExpiresAt    time.Time
	CreatedAt    time.Time
	LastActivity time.Time
}
