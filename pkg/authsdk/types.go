package authsdk

import "time"

// Profile is the authorization profile carried by an access token.
type Profile struct {
	UserID        string   `json:"user_id"`
	Email         string   `json:"email"`
	FirstName     string   `json:"first_name"`
	LastName      string   `json:"last_name"`
	Roles         []string `json:"roles"`
	Permissions   []string `json:"permissions"`
	Status        string   `json:"status"`
	EmailVerified bool     `json:"email_verified"`
	MFAEnabled    bool     `json:"mfa_enabled"`
}

// HasPermission reports whether the profile carries "resource:action".
func (p Profile) HasPermission(name string) bool {
	for _, have := range p.Permissions {
		if have == name {
			return true
		}
	}
	return false
}

// ============================================================================
// Authentication
// ============================================================================

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// UserInfo is the administrative view of an account.
type UserInfo struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Status        string     `json:"status"`
	EmailVerified bool       `json:"email_verified"`
	MFAEnabled    bool       `json:"mfa_enabled"`
	Provider      string     `json:"provider,omitempty"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a freshly issued token pair. Lifetimes are seconds.
type TokenResponse struct {
	AccessToken      string   `json:"access_token,omitempty"`
	RefreshToken     string   `json:"refresh_token,omitempty"`
	TokenType        string   `json:"token_type,omitempty"`
	ExpiresIn        int      `json:"expires_in,omitempty"`
	RefreshExpiresIn int      `json:"refresh_expires_in,omitempty"`
	User             *Profile `json:"user,omitempty"`
}

// LoginResponse either carries tokens or, when MFARequired is set, the
// challenge token to pass to /v1/auth/verify-mfa.
type LoginResponse struct {
	TokenResponse

	MFARequired bool     `json:"mfa_required"`
	MFAToken    string   `json:"mfa_token,omitempty"`
	MFAMethods  []string `json:"mfa_methods,omitempty"`
}

type VerifyMFARequest struct {
	MFAToken string `json:"mfa_token"`
	Method   string `json:"method"`
	Code     string `json:"code"`
}

// RefreshRequest may be empty when the refresh token travels as a cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type LogoutAllResponse struct {
	Revoked int `json:"revoked"`
}

type ValidateResponse struct {
	Valid bool    `json:"valid"`
	User  Profile `json:"user"`
}

type CheckResponse struct {
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

// SessionInfo describes one live refresh token of the caller.
type SessionInfo struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

type OAuthInitiateResponse struct {
	Provider         string `json:"provider"`
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
	ExpiresIn        int    `json:"expires_in"`
}

// ============================================================================
// MFA
// ============================================================================

type TOTPEnrollResponse struct {
	Secret  string `json:"secret"`
	URL     string `json:"otpauth_url"`
	Issuer  string `json:"issuer"`
	Account string `json:"account"`
}

type TOTPCodeRequest struct {
	Code string `json:"code"`
}

// BackupCodesResponse is shown once; only fingerprints are stored.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

type BackupCodesStatusResponse struct {
	Remaining int `json:"remaining"`
}

// ============================================================================
// RBAC administration
// ============================================================================

type RoleInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ParentID    *string   `json:"parent_id,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ListRolesResponse struct {
	Roles []RoleInfo `json:"roles"`
}

type RoleTreeNode struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Permissions []string       `json:"permissions"`
	Children    []RoleTreeNode `json:"children,omitempty"`
}

type RoleTreeResponse struct {
	Roles []RoleTreeNode `json:"roles"`
}

type CreateRoleRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	ParentID      *string  `json:"parent_id,omitempty"`
	PermissionIDs []string `json:"permission_ids,omitempty"`
}

type UpdateRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SetParentRequest detaches the role when ParentID is nil.
type SetParentRequest struct {
	ParentID *string `json:"parent_id"`
}

type SetRolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids"`
}

type PermissionInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Resource    string   `json:"resource"`
	Action      string   `json:"action"`
	Attributes  []string `json:"attributes,omitempty"`
	Description string   `json:"description,omitempty"`
}

type ListPermissionsResponse struct {
	Permissions []PermissionInfo `json:"permissions"`
}

type CreatePermissionRequest struct {
	Resource    string   `json:"resource"`
	Action      string   `json:"action"`
	Attributes  []string `json:"attributes,omitempty"`
	Description string   `json:"description,omitempty"`
}

type AssignRolesRequest struct {
	Roles []string `json:"roles"`
}

type GrantPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

// ============================================================================
// Health
// ============================================================================

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Cache    string `json:"cache"`
}
