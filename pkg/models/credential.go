package models

import (
	"time"

	"github.com/google/uuid"
)

// Credential holds one user's OAuth tokens for a provider. Tokens are
// encrypted at rest; the store decrypts them on read. One Meta credential
// serves both Facebook and Instagram.
type Credential struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	UserID       uuid.UUID `db:"user_id"       json:"user_id"`
	Provider     string    `db:"provider"      json:"provider"`
	AccessToken  string    `db:"access_token"  json:"-"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	ExpiresAt    time.Time `db:"expires_at"    json:"expires_at"`
	AccountID    string    `db:"account_id"    json:"account_id"`
	PageID       string    `db:"page_id"       json:"page_id,omitempty"`
	IGUserID     string    `db:"ig_user_id"    json:"ig_user_id,omitempty"`
	ChannelID    string    `db:"channel_id"    json:"channel_id,omitempty"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

// ExpiresWithin reports whether the access token is already expired or will
// expire within the given safety window.
func (c *Credential) ExpiresWithin(window time.Duration) bool {
	return !c.ExpiresAt.After(time.Now().Add(window))
}
