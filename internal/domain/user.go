package domain

import "time"

// Auth providers.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
	ProviderCustom   = "custom"
)

type User struct {
	UserID       string       `json:"id" dynamodbav:"user_id"`
	Email        string       `json:"email" dynamodbav:"email"`
	DisplayName  string       `json:"display_name" dynamodbav:"display_name"`
	PasswordHash string       `json:"-" dynamodbav:"password_hash"`
	AuthProvider string       `json:"auth_provider" dynamodbav:"auth_provider"`
	IdentitySub  string       `json:"-" dynamodbav:"identity_sub"`
	Tier         string       `json:"tier" dynamodbav:"tier"`
	Quota        Quota        `json:"quota" dynamodbav:"quota"`
	Capabilities Capabilities `json:"capabilities" dynamodbav:"capabilities"`
	Enable       bool         `json:"enable" dynamodbav:"enable"`
	CreatedAt    time.Time    `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time    `json:"updated" dynamodbav:"updated_at"`
}

// ApplyTier overwrites the tier-affecting fields of u, keeping usage.
func (u *User) ApplyTier(t TierEffects) {
	u.Tier = t.Tier
	u.Quota.Limit = t.QuotaLimit
	u.Capabilities = t.Capabilities
}

// UserSnapshot is the public view of an account the session endpoints return.
type UserSnapshot struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	DisplayName  string       `json:"display_name"`
	Provider     string       `json:"provider"`
	Tier         string       `json:"tier"`
	Quota        Quota        `json:"quota"`
	Capabilities Capabilities `json:"capabilities"`
}

// Snapshot projects u for clients.
func (u *User) Snapshot() *UserSnapshot {
	return &UserSnapshot{
		ID:           u.UserID,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		Provider:     u.AuthProvider,
		Tier:         u.Tier,
		Quota:        u.Quota,
		Capabilities: u.Capabilities,
	}
}

// Identity is what a verified IdP token asserts about its bearer.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
	Provider      string
}
