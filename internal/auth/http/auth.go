package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
	"github.com/aussiebroadwan/warden/internal/auth/service"
	"github.com/aussiebroadwan/warden/pkg/authsdk"
	"github.com/aussiebroadwan/warden/pkg/httpx"
)

// AuthHandler serves the /v1/auth endpoints.
type AuthHandler struct {
	Login    *service.LoginService
	Sessions *service.SessionGovernor
	Users    *service.UserService
	RBAC     *service.RBACResolver
	Cookies  httpx.CookieConfig
}

// setTokenCookies mirrors a token pair into http-only cookies for browser
// clients. Bodies still carry the tokens for API clients.
func (h *AuthHandler) setTokenCookies(w http.ResponseWriter, pair domain.TokenPair) {
	h.Cookies.Set(w, httpx.AccessTokenCookie, pair.AccessToken, pair.ExpiresIn)
	h.Cookies.Set(w, httpx.RefreshTokenCookie, pair.RefreshToken, pair.RefreshExpiresIn)
}

func (h *AuthHandler) clearTokenCookies(w http.ResponseWriter) {
	h.Cookies.Clear(w, httpx.AccessTokenCookie)
	h.Cookies.Clear(w, httpx.RefreshTokenCookie)
}

// writeLogin answers a login, MFA or OAuth completion.
func (h *AuthHandler) writeLogin(w http.ResponseWriter, res domain.LoginResult) {
	if res.Pair != nil {
		h.setTokenCookies(w, *res.Pair)
	}
	httpx.WriteJSON(w, http.StatusOK, toLoginResponse(res))
}

// HandleRegister godoc
//
//	@Summary		Register a local account
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"email, password, names"
//	@Success		201		{object}	authsdk.UserInfo
//	@Failure		400		{object}	authsdk.APIError	"validation_failed"
//	@Failure		409		{object}	authsdk.APIError	"email already registered"
//	@Failure		429		{object}	authsdk.APIError	"rate limited"
//	@Router			/v1/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.Login.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toUserInfo(user))
}

// HandleLogin godoc
//
//	@Summary		Password login
//	@Description	Returns a token pair, or mfa_required with an mfa_token when the account has MFA enabled.
//	@Description	Tokens are also set as http-only cookies.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"credentials"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		401		{object}	authsdk.APIError	"invalid_credentials"
//	@Failure		403		{object}	authsdk.APIError	"account_disabled"
//	@Failure		423		{object}	authsdk.APIError	"account_locked with locked_until"
//	@Failure		429		{object}	authsdk.APIError	"rate limited"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Login.Login(r.Context(), req.Email, req.Password, clientMeta(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeLogin(w, res)
}

// HandleVerifyMFA godoc
//
//	@Summary	Complete an MFA login
//	@Tags		Auth
//	@Accept		json
//	@Produce	json
//	@Param		request	body		authsdk.VerifyMFARequest	true	"mfa_token, method (totp|backup_code), code"
//	@Success	200		{object}	authsdk.LoginResponse
//	@Failure	401		{object}	authsdk.APIError	"invalid_mfa_code or invalid_token"
//	@Failure	429		{object}	authsdk.APIError	"too_many_attempts"
//	@Router		/v1/auth/verify-mfa [post].
func (h *AuthHandler) HandleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyMFARequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Method == "" {
		req.Method = domain.MFAMethodTOTP
	}

	res, err := h.Login.VerifyMFA(r.Context(), req.MFAToken, req.Method, req.Code, clientMeta(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeLogin(w, res)
}

// HandleRefresh godoc
//
//	@Summary		Rotate a refresh token
//	@Description	Accepts the refresh token in the body or the refresh_token cookie. The presented token is revoked; replaying it fails with token_revoked.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	false	"refresh_token"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		401		{object}	authsdk.APIError	"missing, invalid, expired or revoked token"
//	@Failure		403		{object}	authsdk.APIError	"account_disabled"
//	@Router			/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		token = httpx.CookieValue(r, httpx.RefreshTokenCookie)
	}

	pair, profile, err := h.Login.Refresh(r.Context(), token, clientMeta(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.setTokenCookies(w, pair)
	httpx.WriteJSON(w, http.StatusOK, toTokenResponse(pair, profile))
}

// HandleLogout godoc
//
//	@Summary		End the current session
//	@Description	Revokes the refresh token (body or cookie) and the presented access token (bearer or cookie), then clears the cookies.
//	@Tags			Auth
//	@Accept			json
//	@Param			request	body	authsdk.LogoutRequest	false	"refresh_token"
//	@Success		204
//	@Failure		401	{object}	authsdk.APIError	"no token presented or token invalid"
//	@Router			/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LogoutRequest
	if err := httpx.DecodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	refresh := strings.TrimSpace(req.RefreshToken)
	if refresh == "" {
		refresh = httpx.CookieValue(r, httpx.RefreshTokenCookie)
	}

	if err := h.Login.Logout(r.Context(), refresh, httpx.AccessTokenFromRequest(r)); err != nil {
		writeError(w, r, err)
		return
	}
	h.clearTokenCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleLogoutAll godoc
//
//	@Summary	End every session of the caller
//	@Tags		Auth
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	authsdk.LogoutAllResponse
//	@Failure	401	{object}	authsdk.APIError
//	@Router		/v1/auth/logout-all [post].
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.Login.LogoutAll(ctx, httpx.UserID(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.clearTokenCookies(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.LogoutAllResponse{Revoked: n})
}

// HandleValidate godoc
//
//	@Summary		Validate an access token
//	@Description	Full verification including the revocation list. Accepts a bearer token or the access_token cookie.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.ValidateResponse
//	@Failure		401	{object}	authsdk.APIError
//	@Router			/v1/auth/validate [get].
func (h *AuthHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Login.Validate(r.Context(), httpx.AccessTokenFromRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.ValidateResponse{Valid: true, User: toProfile(profile)})
}

// HandleCheck godoc
//
//	@Summary		Check a permission
//	@Description	Evaluates the caller's current grants, not the token snapshot.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Param			permission	query		string	true	"resource:action"
//	@Success		200			{object}	authsdk.CheckResponse
//	@Failure		400			{object}	authsdk.APIError
//	@Failure		401			{object}	authsdk.APIError
//	@Router			/v1/auth/check [get].
func (h *AuthHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	perm := strings.TrimSpace(r.URL.Query().Get("permission"))
	if perm == "" {
		writeError(w, r, &service.ValidationError{Fields: map[string]string{"permission": "is required"}})
		return
	}

	user, err := h.Users.GetUser(ctx, httpx.UserID(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}
	allowed, err := h.RBAC.HasPermission(ctx, user, perm)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.CheckResponse{Permission: perm, Allowed: allowed})
}

// HandleListSessions godoc
//
//	@Summary	List the caller's live sessions
//	@Tags		Auth
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	authsdk.ListSessionsResponse
//	@Router		/v1/auth/sessions [get].
func (h *AuthHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.Sessions.ListSessions(ctx, httpx.UserID(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := authsdk.ListSessionsResponse{Sessions: make([]authsdk.SessionInfo, len(records))}
	for i, rec := range records {
		resp.Sessions[i] = toSessionInfo(rec)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleRevokeSession godoc
//
//	@Summary	End one of the caller's sessions
//	@Tags		Auth
//	@Security	BearerAuth
//	@Param		id	path	string	true	"session id"
//	@Success	204
//	@Failure	404	{object}	authsdk.APIError
//	@Router		/v1/auth/sessions/{id} [delete].
func (h *AuthHandler) HandleRevokeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Sessions.RevokeSession(ctx, httpx.UserID(ctx), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
