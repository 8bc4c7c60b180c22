package models

import "time"

// UserRole represents the available roles for organization members.
type UserRole string

const (
	RoleOwner  UserRole = "OWNER"
	RoleAdmin  UserRole = "ADMIN"
	RoleEditor UserRole = "EDITOR"
)

// User represents an organization member stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	OrgID        string     `db:"org_id" json:"org_id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// TenantContext identifies the calling organization and member for every
// engine call. It is derived from the access token, never from ambient state.
type TenantContext struct {
	OrgID  string
	UserID string
}
