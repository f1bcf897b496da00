package http

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/warden/internal/auth/service"
	"github.com/aussiebroadwan/warden/pkg/authsdk"
	"github.com/aussiebroadwan/warden/pkg/httpx"
)

// RolesHandler serves role and permission administration.
type RolesHandler struct {
	RBAC *service.RBACResolver
}

// permissionNames indexes permission names by id for role responses.
func (h *RolesHandler) permissionNames(ctx context.Context) (map[string]string, error) {
	perms, err := h.RBAC.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(perms))
	for _, p := range perms {
		names[p.ID] = p.Name()
	}
	return names, nil
}

// HandleList lists roles.
//
//	@Summary		List all roles
//	@Description	Returns every role with its directly granted permissions. Requires roles:read.
//	@Tags			Roles
//	@Produce		json
//	@Success		200	{object}	authsdk.ListRolesResponse	"List of roles"
//	@Failure		401	{object}	authsdk.APIError			"Unauthorized - missing or invalid token"
//	@Failure		403	{object}	authsdk.APIError			"Forbidden - missing required permission"
//	@Security		BearerAuth
//	@Router			/v1/roles [get].
func (h *RolesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roles, err := h.RBAC.ListRoles(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	names, err := h.permissionNames(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := authsdk.ListRolesResponse{Roles: make([]authsdk.RoleInfo, len(roles))}
	for i, role := range roles {
		resp.Roles[i] = toRoleInfo(role, names)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleGet returns one role.
//
//	@Summary	Get a role
//	@Tags		Roles
//	@Produce	json
//	@Param		id	path		string	true	"role id"
//	@Success	200	{object}	authsdk.RoleInfo
//	@Failure	404	{object}	authsdk.APIError
//	@Security	BearerAuth
//	@Router		/v1/roles/{id} [get].
func (h *RolesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	role, err := h.RBAC.GetRole(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	names, err := h.permissionNames(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRoleInfo(role, names))
}

// HandleTree returns the role hierarchy.
//
//	@Summary	Role hierarchy
//	@Tags		Roles
//	@Produce	json
//	@Success	200	{object}	authsdk.RoleTreeResponse
//	@Security	BearerAuth
//	@Router		/v1/roles/tree [get].
func (h *RolesHandler) HandleTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.RBAC.RoleTree(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RoleTreeResponse{Roles: toRoleTree(tree)})
}

// HandleCreate creates a role.
//
//	@Summary	Create a role
//	@Tags		Roles
//	@Accept		json
//	@Produce	json
//	@Param		request	body		authsdk.CreateRoleRequest	true	"role"
//	@Success	201		{object}	authsdk.RoleInfo
//	@Failure	400		{object}	authsdk.APIError	"invalid name, parent or permissions"
//	@Failure	409		{object}	authsdk.APIError	"name taken"
//	@Security	BearerAuth
//	@Router		/v1/roles [post].
func (h *RolesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.CreateRoleRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	role, err := h.RBAC.CreateRole(ctx, service.RoleInput{
		Name:          req.Name,
		Description:   req.Description,
		ParentID:      req.ParentID,
		PermissionIDs: req.PermissionIDs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	names, err := h.permissionNames(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toRoleInfo(role, names))
}

// HandleUpdate renames a role or changes its description.
//
//	@Summary	Update a role
//	@Tags		Roles
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string						true	"role id"
//	@Param		request	body		authsdk.UpdateRoleRequest	true	"name and description"
//	@Success	200		{object}	authsdk.RoleInfo
//	@Security	BearerAuth
//	@Router		/v1/roles/{id} [patch].
func (h *RolesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.UpdateRoleRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	role, err := h.RBAC.UpdateRole(ctx, r.PathValue("id"), req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	names, err := h.permissionNames(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRoleInfo(role, names))
}

// HandleDelete removes a role that has no children and no users.
//
//	@Summary	Delete a role
//	@Tags		Roles
//	@Param		id	path	string	true	"role id"
//	@Success	204
//	@Failure	409	{object}	authsdk.APIError	"role still has children or users"
//	@Security	BearerAuth
//	@Router		/v1/roles/{id} [delete].
func (h *RolesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.RBAC.DeleteRole(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetParent moves a role in the hierarchy.
//
//	@Summary		Set a role's parent
//	@Description	A null parent_id detaches the role. Cycles are rejected.
//	@Tags			Roles
//	@Accept			json
//	@Param			id		path	string						true	"role id"
//	@Param			request	body	authsdk.SetParentRequest	true	"parent_id"
//	@Success		204
//	@Failure		400	{object}	authsdk.APIError	"would create a cycle"
//	@Security		BearerAuth
//	@Router			/v1/roles/{id}/parent [put].
func (h *RolesHandler) HandleSetParent(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SetParentRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.RBAC.SetParent(r.Context(), r.PathValue("id"), req.ParentID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetPermissions replaces a role's permissions.
//
//	@Summary	Set a role's permissions
//	@Tags		Roles
//	@Accept		json
//	@Param		id		path	string								true	"role id"
//	@Param		request	body	authsdk.SetRolePermissionsRequest	true	"permission ids"
//	@Success	204
//	@Security	BearerAuth
//	@Router		/v1/roles/{id}/permissions [put].
func (h *RolesHandler) HandleSetPermissions(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SetRolePermissionsRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.RBAC.SetRolePermissions(r.Context(), r.PathValue("id"), req.PermissionIDs); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListPermissions lists permissions.
//
//	@Summary	List permissions
//	@Tags		Permissions
//	@Produce	json
//	@Success	200	{object}	authsdk.ListPermissionsResponse
//	@Security	BearerAuth
//	@Router		/v1/permissions [get].
func (h *RolesHandler) HandleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.RBAC.ListPermissions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := authsdk.ListPermissionsResponse{Permissions: make([]authsdk.PermissionInfo, len(perms))}
	for i, p := range perms {
		resp.Permissions[i] = toPermissionInfo(p)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleCreatePermission defines a new resource:action pair.
//
//	@Summary	Create a permission
//	@Tags		Permissions
//	@Accept		json
//	@Produce	json
//	@Param		request	body		authsdk.CreatePermissionRequest	true	"permission"
//	@Success	201		{object}	authsdk.PermissionInfo
//	@Failure	409		{object}	authsdk.APIError	"already defined"
//	@Security	BearerAuth
//	@Router		/v1/permissions [post].
func (h *RolesHandler) HandleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CreatePermissionRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	perm, err := h.RBAC.CreatePermission(r.Context(), service.PermissionInput{
		Resource:    req.Resource,
		Action:      req.Action,
		Attributes:  req.Attributes,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toPermissionInfo(perm))
}

// HandleDeletePermission godoc
//
//	@Summary	Delete a permission
//	@Tags		Permissions
//	@Param		id	path	string	true	"permission id"
//	@Success	204
//	@Security	BearerAuth
//	@Router		/v1/permissions/{id} [delete].
func (h *RolesHandler) HandleDeletePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.RBAC.DeletePermission(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
