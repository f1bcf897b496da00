package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/warden/pkg/httpx"
)

// Error codes returned in the "error" field of every failure response.
const (
	ErrorCodeInvalidRequest         = "invalid_request"
	ErrorCodeInvalidCredentials     = "invalid_credentials"
	ErrorCodeAccountLocked          = "account_locked"
	ErrorCodeAccountDisabled        = "account_disabled"
	ErrorCodeMissingToken           = "missing_token"
	ErrorCodeExpiredToken           = "expired_token"
	ErrorCodeInvalidToken           = "invalid_token"
	ErrorCodeTokenRevoked           = "token_revoked"
	ErrorCodeInsufficientPermission = "insufficient_permission"
	ErrorCodeInvalidRole            = "invalid_role"
	ErrorCodeValidationFailed       = "validation_failed"
	ErrorCodeNotFound               = "not_found"
	ErrorCodeConflict               = "conflict"
	ErrorCodeInvalidOAuthState      = "invalid_oauth_state"
	ErrorCodeOAuthProvider          = "oauth_provider_error"
	ErrorCodeIncompleteProfile      = "incomplete_profile"
	ErrorCodeUnknownProvider        = "unknown_provider"
	ErrorCodeInvalidMFACode         = "invalid_mfa_code"
	ErrorCodeTooManyAttempts        = "too_many_attempts"
	ErrorCodeRateLimitExceeded      = "rate_limit_exceeded"
	ErrorCodeServerError            = "server_error"
)

// APIError is the error envelope of the service. The server writes it and
// the client decodes every non-2xx response into one.
type APIError struct {
	StatusCode  int               `json:"-"`
	Code        string            `json:"error"`
	Description string            `json:"error_description,omitempty"`
	LockedUntil *time.Time        `json:"locked_until,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Description)
}

// WriteError writes e as a JSON response with its status code.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, e)
}

// ErrorCode returns the API error code carried by err, or "".
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

var (
	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request body is malformed",
	}
)

// NewAPIError builds an error envelope.
func NewAPIError(status int, code, description string) *APIError {
	return &APIError{StatusCode: status, Code: code, Description: description}
}

// MFARequiredError is returned by Client.AuthenticateWithPassword when the
// account needs a second factor. Complete it with Client.VerifyMFA.
type MFARequiredError struct {
	MFAToken string
	Methods  []string
}

func (e *MFARequiredError) Error() string {
	return fmt.Sprintf("mfa required: available methods=%v", e.Methods)
}

// parseErrorResponse decodes a failure body. Bodies that are not the
// envelope still produce an APIError carrying the status code.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr = &APIError{
			Code:        ErrorCodeServerError,
			Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}
