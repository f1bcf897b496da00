package http

import (
	"net/http"

	"github.com/aussiebroadwan/warden/internal/auth/service"
	"github.com/aussiebroadwan/warden/pkg/authsdk"
	"github.com/aussiebroadwan/warden/pkg/httpx"
	"github.com/aussiebroadwan/warden/pkg/slogx"
)

// OAuthHandler runs the browser side of provider logins. The state is also
// pinned in a cookie so a callback only completes in the browser that
// started it.
type OAuthHandler struct {
	OAuth *service.OAuthHandshake
	Auth  *AuthHandler
}

// HandleInitiate godoc
//
//	@Summary		Begin a provider login
//	@Description	GET redirects the browser to the provider; POST returns the authorization URL as JSON.
//	@Description	Both set the oauth_state cookie for the callback.
//	@Tags			OAuth
//	@Produce		json
//	@Param			provider		query		string	true	"google, facebook or github"
//	@Param			redirect_uri	query		string	false	"callback URL registered with the provider"
//	@Success		200				{object}	authsdk.OAuthInitiateResponse
//	@Success		302
//	@Failure		404	{object}	authsdk.APIError	"unknown_provider"
//	@Router			/v1/auth/oauth/initiate [get]
//	@Router			/v1/auth/oauth/initiate [post].
func (h *OAuthHandler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	login, err := h.OAuth.BeginLogin(r.Context(), q.Get("provider"), q.Get("redirect_uri"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Lax so the cookie comes back on the provider's cross-site redirect.
	h.Auth.Cookies.SetLax(w, httpx.OAuthStateCookie, login.State, login.ExpiresIn)

	if r.Method == http.MethodGet {
		httpx.NoCache(w)
		http.Redirect(w, r, login.URL, http.StatusFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.OAuthInitiateResponse{
		Provider:         login.Provider,
		AuthorizationURL: login.URL,
		State:            login.State,
		ExpiresIn:        seconds(login.ExpiresIn),
	})
}

// HandleCallback godoc
//
//	@Summary		Provider callback
//	@Description	Validates the state against the oauth_state cookie, exchanges the code and signs the user in.
//	@Tags			OAuth
//	@Produce		json
//	@Param			provider	path		string	true	"provider name"
//	@Param			code		query		string	false	"authorization code"
//	@Param			state		query		string	true	"state from initiate"
//	@Param			error		query		string	false	"provider error"
//	@Success		200			{object}	authsdk.LoginResponse
//	@Failure		401			{object}	authsdk.APIError	"invalid_oauth_state"
//	@Failure		409			{object}	authsdk.APIError	"email belongs to a local account"
//	@Failure		502			{object}	authsdk.APIError	"oauth_provider_error"
//	@Router			/v1/auth/oauth/callback/{provider} [get].
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	params := service.CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}

	provider := r.PathValue("provider")

	// A provider error ends the request before any state is looked at. The
	// state and its cookie stay valid for a retry.
	if params.Error != "" {
		_, err := h.OAuth.CompleteCallback(ctx, provider, params, clientMeta(r))
		writeError(w, r, err)
		return
	}

	pinned := httpx.CookieValue(r, httpx.OAuthStateCookie)
	if pinned == "" || pinned != params.State {
		slogx.FromContext(ctx).Warn("oauth state rejected", "reason", "cookie mismatch")
		writeError(w, r, service.ErrInvalidOAuthState)
		return
	}

	// The state is spent from here on, whatever the outcome.
	h.Auth.Cookies.ClearLax(w, httpx.OAuthStateCookie)

	res, err := h.OAuth.CompleteCallback(ctx, provider, params, clientMeta(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Auth.writeLogin(w, res)
}
