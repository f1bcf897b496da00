package http

import (
	"net/http"

	"github.com/aussiebroadwan/warden/internal/auth/service"
	"github.com/aussiebroadwan/warden/pkg/authsdk"
	"github.com/aussiebroadwan/warden/pkg/httpx"
	"github.com/aussiebroadwan/warden/pkg/slogx"
)

// MFAHandler handles all MFA-related endpoints.
type MFAHandler struct {
	MFAService *service.MFAService
}

// HandleEnroll handles POST /v1/mfa/totp/enroll
//
//	@Summary		Enroll in TOTP MFA
//	@Description	Generates a TOTP secret for the authenticated user. MFA stays off until the first code is confirmed.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TOTPEnrollResponse	"secret and otpauth URL"
//	@Failure		401	{object}	authsdk.APIError			"Invalid or missing access token"
//	@Failure		409	{object}	authsdk.APIError			"MFA already enabled"
//	@Router			/v1/mfa/totp/enroll [post].
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	enrollment, err := h.MFAService.EnrollTOTP(ctx, httpx.UserID(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPEnrollResponse{
		Secret:  enrollment.Secret,
		URL:     enrollment.URL,
		Issuer:  enrollment.Issuer,
		Account: enrollment.Account,
	})
}

// HandleVerify handles POST /v1/mfa/totp/verify
//
//	@Summary		Confirm TOTP enrollment
//	@Description	Verifies a TOTP code, enables MFA and returns backup codes (shown once).
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TOTPCodeRequest		true	"TOTP code"
//	@Success		200		{object}	authsdk.BackupCodesResponse	"Backup codes (shown once)"
//	@Failure		401		{object}	authsdk.APIError			"invalid_mfa_code"
//	@Failure		409		{object}	authsdk.APIError			"not enrolled or already enabled"
//	@Router			/v1/mfa/totp/verify [post].
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.TOTPCodeRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	codes, err := h.MFAService.ConfirmTOTP(ctx, httpx.UserID(ctx), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slogx.FromContext(ctx).Info("mfa enabled")
	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesResponse{BackupCodes: codes})
}

// HandleRegenerateBackupCodes handles POST /v1/mfa/backup-codes
//
//	@Summary		Regenerate backup codes
//	@Description	Replaces every backup code. Requires a current TOTP code.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TOTPCodeRequest		true	"TOTP code for verification"
//	@Success		200		{object}	authsdk.BackupCodesResponse	"New backup codes (shown once)"
//	@Failure		401		{object}	authsdk.APIError			"invalid_mfa_code"
//	@Failure		409		{object}	authsdk.APIError			"MFA not enabled"
//	@Router			/v1/mfa/backup-codes [post].
func (h *MFAHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.TOTPCodeRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	codes, err := h.MFAService.RegenerateBackupCodes(ctx, httpx.UserID(ctx), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesResponse{BackupCodes: codes})
}

// HandleBackupCodeStatus handles GET /v1/mfa/backup-codes
//
//	@Summary	Count unused backup codes
//	@Tags		MFA
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	authsdk.BackupCodesStatusResponse
//	@Router		/v1/mfa/backup-codes [get].
func (h *MFAHandler) HandleBackupCodeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.MFAService.RemainingBackupCodes(ctx, httpx.UserID(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesStatusResponse{Remaining: n})
}

// HandleRemove handles DELETE /v1/mfa/totp
//
//	@Summary		Remove TOTP MFA
//	@Description	Disables MFA and deletes the backup codes. Requires a current TOTP code.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.TOTPCodeRequest	true	"TOTP code for verification"
//	@Success		204
//	@Failure		401	{object}	authsdk.APIError	"invalid_mfa_code"
//	@Failure		409	{object}	authsdk.APIError	"MFA not enabled"
//	@Router			/v1/mfa/totp [delete].
func (h *MFAHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.TOTPCodeRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.MFAService.RemoveMFA(ctx, httpx.UserID(ctx), req.Code); err != nil {
		writeError(w, r, err)
		return
	}

	slogx.FromContext(ctx).Info("mfa removed")
	w.WriteHeader(http.StatusNoContent)
}
