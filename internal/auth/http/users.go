package http

import (
	"net/http"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
	"github.com/aussiebroadwan/warden/internal/auth/service"
	"github.com/aussiebroadwan/warden/pkg/authsdk"
	"github.com/aussiebroadwan/warden/pkg/httpx"
)

// UsersHandler serves account administration.
type UsersHandler struct {
	Users *service.UserService
	RBAC  *service.RBACResolver
}

// HandleGet godoc
//
//	@Summary	Get a user
//	@Tags		Users
//	@Produce	json
//	@Param		id	path		string	true	"user id"
//	@Success	200	{object}	authsdk.UserInfo
//	@Failure	404	{object}	authsdk.APIError
//	@Security	BearerAuth
//	@Router		/v1/users/{id} [get].
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserInfo(user))
}

// HandleAssignRoles godoc
//
//	@Summary		Replace a user's roles
//	@Description	Takes effect in the user's next access token.
//	@Tags			Users
//	@Accept			json
//	@Param			id		path	string						true	"user id"
//	@Param			request	body	authsdk.AssignRolesRequest	true	"role names"
//	@Success		204
//	@Failure		403	{object}	authsdk.APIError	"invalid_role"
//	@Security		BearerAuth
//	@Router			/v1/users/{id}/roles [put].
func (h *UsersHandler) HandleAssignRoles(w http.ResponseWriter, r *http.Request) {
	var req authsdk.AssignRolesRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.RBAC.AssignRoles(r.Context(), r.PathValue("id"), req.Roles); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGrantPermissions godoc
//
//	@Summary	Replace a user's direct permission grants
//	@Tags		Users
//	@Accept		json
//	@Param		id		path	string							true	"user id"
//	@Param		request	body	authsdk.GrantPermissionsRequest	true	"resource:action names"
//	@Success	204
//	@Security	BearerAuth
//	@Router		/v1/users/{id}/permissions [put].
func (h *UsersHandler) HandleGrantPermissions(w http.ResponseWriter, r *http.Request) {
	var req authsdk.GrantPermissionsRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.RBAC.GrantPermissions(r.Context(), r.PathValue("id"), req.Permissions); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetStatus godoc
//
//	@Summary		Change a user's status
//	@Description	ACTIVE, PENDING, SUSPENDED or INACTIVE. Suspending or deactivating ends all sessions.
//	@Tags			Users
//	@Accept			json
//	@Param			id		path	string						true	"user id"
//	@Param			request	body	authsdk.SetStatusRequest	true	"status"
//	@Success		204
//	@Failure		400	{object}	authsdk.APIError	"unknown status or LOCKED"
//	@Security		BearerAuth
//	@Router			/v1/users/{id}/status [put].
func (h *UsersHandler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SetStatusRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Users.SetStatus(r.Context(), r.PathValue("id"), domain.UserStatus(req.Status)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
