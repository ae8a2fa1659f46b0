package domain

import "time"

// Account is a board member resolved from an identity provider login.
type Account struct {
	ID                  string
	Provider            string
	ProviderUserID      string
	ProviderUsername    string
	ProviderDisplayName string
	ProviderAvatarURL   string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	LastLoginAt         *time.Time
}

// ProviderProfile is the explicit schema of the identity provider's profile response.
type ProviderProfile struct {
	Provider    string
	ID          string
	Username    string
	DisplayName string
	AvatarURL   string
}

// Complete reports whether the required profile fields are present.
func (p ProviderProfile) Complete() bool {
	return p.ID != "" && p.Username != ""
}
