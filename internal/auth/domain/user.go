package domain

import "time"

// UserStatus is the lifecycle state of an account.
type UserStatus string

const (
	UserActive    UserStatus = "ACTIVE"
	UserPending   UserStatus = "PENDING"
	UserSuspended UserStatus = "SUSPENDED" // set by administrators only
	UserLocked    UserStatus = "LOCKED"    // set by the failed-attempt guard only
	UserInactive  UserStatus = "INACTIVE"
)

// Valid reports whether s is a known status.
func (s UserStatus) Valid() bool {
	switch s {
	case UserActive, UserPending, UserSuspended, UserLocked, UserInactive:
		return true
	}
	return false
}

type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Picture      string
	PasswordHash *string // nil for accounts created through an OAuth provider
	Status       UserStatus

	FailedAttempts int
	LockedUntil    *time.Time

	RoleIDs     []string
	Permissions []string // direct grants, "resource:action"

	EmailVerified bool
	MFAEnabledAt  *time.Time
	MFASecret     *string // base32 TOTP secret, set at enrollment

	Provider   string // external identity provider, empty for local accounts
	ProviderID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u User) HasPassword() bool { return u.PasswordHash != nil && *u.PasswordHash != "" }

func (u User) MFAEnabled() bool { return u.MFAEnabledAt != nil }

// ExternalProfile is a provider profile after normalization.
type ExternalProfile struct {
	Provider   string
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
	Picture    string
}
