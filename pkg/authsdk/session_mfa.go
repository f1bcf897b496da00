package authsdk

import (
	"context"
	"net/http"
)

// EnrollTOTP creates a TOTP secret. MFA is enabled by ConfirmTOTP.
func (s *Session) EnrollTOTP(ctx context.Context) (*TOTPEnrollResponse, error) {
	return send[TOTPEnrollResponse](ctx, s, http.MethodPost, "/v1/mfa/totp/enroll", nil, http.StatusOK)
}

// ConfirmTOTP enables MFA and returns the backup codes, shown once.
func (s *Session) ConfirmTOTP(ctx context.Context, code string) ([]string, error) {
	resp, err := send[BackupCodesResponse](ctx, s, http.MethodPost, "/v1/mfa/totp/verify",
		TOTPCodeRequest{Code: code}, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return resp.BackupCodes, nil
}

// RegenerateBackupCodes replaces all backup codes.
func (s *Session) RegenerateBackupCodes(ctx context.Context, code string) ([]string, error) {
	resp, err := send[BackupCodesResponse](ctx, s, http.MethodPost, "/v1/mfa/backup-codes",
		TOTPCodeRequest{Code: code}, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return resp.BackupCodes, nil
}

// RemainingBackupCodes counts unused backup codes.
func (s *Session) RemainingBackupCodes(ctx context.Context) (int, error) {
	resp, err := send[BackupCodesStatusResponse](ctx, s, http.MethodGet, "/v1/mfa/backup-codes", nil, http.StatusOK)
	if err != nil {
		return 0, err
	}
	return resp.Remaining, nil
}

// RemoveMFA disables MFA after checking a current TOTP code.
func (s *Session) RemoveMFA(ctx context.Context, code string) error {
	return sendNoContent(ctx, s, http.MethodDelete, "/v1/mfa/totp", TOTPCodeRequest{Code: code})
}
