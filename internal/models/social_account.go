package models

import "time"

// SocialAccountStatus enumerates connection states for a channel.
type SocialAccountStatus string

const (
	SocialAccountConnected    SocialAccountStatus = "CONNECTED"
	SocialAccountDisconnected SocialAccountStatus = "DISCONNECTED"
)

// SocialAccount is a connected publishing channel owned by an organization.
type SocialAccount struct {
	ID          string              `db:"id" json:"id"`
	OrgID       string              `db:"org_id" json:"org_id"`
	Platform    string              `db:"platform" json:"platform"`
	Handle      string              `db:"handle" json:"handle"`
	DisplayName string              `db:"display_name" json:"display_name"`
	Status      SocialAccountStatus `db:"status" json:"status"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

// SocialAccountFilter captures filtering criteria for listing accounts.
type SocialAccountFilter struct {
	Platform  string
	Status    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
