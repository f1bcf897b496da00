package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/warden/internal/auth/service"
	"github.com/aussiebroadwan/warden/pkg/authsdk"
	"github.com/aussiebroadwan/warden/pkg/httpx"
	"github.com/aussiebroadwan/warden/pkg/slogx"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is matched in order with errors.Is. More specific errors that
// wrap a general one (ErrMFANotEnabled wraps ErrConflict) come first.
var errorTable = []errorMapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials},
	{service.ErrAccountLocked, http.StatusLocked, authsdk.ErrorCodeAccountLocked},
	{service.ErrAccountDisabled, http.StatusForbidden, authsdk.ErrorCodeAccountDisabled},
	{service.ErrMissingToken, http.StatusUnauthorized, authsdk.ErrorCodeMissingToken},
	{service.ErrTokenExpired, http.StatusUnauthorized, authsdk.ErrorCodeExpiredToken},
	{service.ErrTokenInvalid, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken},
	{service.ErrTokenRevoked, http.StatusUnauthorized, authsdk.ErrorCodeTokenRevoked},
	{service.ErrInsufficientPermission, http.StatusForbidden, authsdk.ErrorCodeInsufficientPermission},
	{httpx.ErrInsufficientPermission, http.StatusForbidden, authsdk.ErrorCodeInsufficientPermission},
	{service.ErrInvalidRole, http.StatusForbidden, authsdk.ErrorCodeInvalidRole},
	{service.ErrValidation, http.StatusBadRequest, authsdk.ErrorCodeValidationFailed},
	{httpx.ErrBadRequestBody, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest},
	{service.ErrNotFound, http.StatusNotFound, authsdk.ErrorCodeNotFound},
	{service.ErrConflict, http.StatusConflict, authsdk.ErrorCodeConflict},
	{service.ErrInvalidOAuthState, http.StatusUnauthorized, authsdk.ErrorCodeInvalidOAuthState},
	{service.ErrIncompleteProfile, http.StatusBadGateway, authsdk.ErrorCodeIncompleteProfile},
	{service.ErrOAuthProvider, http.StatusBadGateway, authsdk.ErrorCodeOAuthProvider},
	{service.ErrUnknownProvider, http.StatusNotFound, authsdk.ErrorCodeUnknownProvider},
	{service.ErrInvalidMFACode, http.StatusUnauthorized, authsdk.ErrorCodeInvalidMFACode},
	{service.ErrTooManyAttempts, http.StatusTooManyRequests, authsdk.ErrorCodeTooManyAttempts},
}

// toAPIError maps a service error to its wire form. Unknown errors become
// server_error without leaking their text.
func toAPIError(err error) *authsdk.APIError {
	for _, m := range errorTable {
		if !errors.Is(err, m.err) {
			continue
		}

		apiErr := &authsdk.APIError{StatusCode: m.status, Code: m.code}

		var locked *service.LockedError
		if errors.As(err, &locked) {
			until := locked.Until.UTC()
			apiErr.LockedUntil = &until
		}
		var invalid *service.ValidationError
		if errors.As(err, &invalid) {
			apiErr.Fields = invalid.Fields
		}
		if m.status < http.StatusInternalServerError && apiErr.Fields == nil {
			apiErr.Description = err.Error()
		}
		return apiErr
	}
	return authsdk.ErrServerError
}

// writeError is the single place service errors reach the wire. It also
// serves as the httpx.ErrorHandler of the authn and authz middlewares.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	log := slogx.FromContext(r.Context())
	if apiErr.StatusCode >= http.StatusInternalServerError {
		log.Error("request failed", "err", err)
	} else {
		log.Debug("request rejected", "code", apiErr.Code, "err", err)
	}
	apiErr.WriteError(w)
}
