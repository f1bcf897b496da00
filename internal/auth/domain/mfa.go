package domain

import "time"

// MFA methods accepted at /verify-mfa.
const (
	MFAMethodTOTP       = "totp"
	MFAMethodBackupCode = "backup_code"
)

// MFASession is a pending second-factor challenge created after a correct
// password for an MFA-enabled user. Its ID is handed to the client.
type MFASession struct {
	ID        string
	UserID    string
	Attempts  int
	IP        string
	UserAgent string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type MFAEnrollment struct {
	Secret  string // base32
	URL     string // otpauth:// URL for QR rendering
	Issuer  string
	Account string
}
