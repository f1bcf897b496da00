package authsdk

import (
	"context"
	"net/http"
)

// Permissions required by the administration endpoints.
const (
	PermRolesRead  = "roles:read"
	PermRolesWrite = "roles:write"
	PermUsersRead  = "users:read"
	PermUsersWrite = "users:write"
)

func (s *Session) ListRoles(ctx context.Context) ([]RoleInfo, error) {
	resp, err := send[ListRolesResponse](ctx, s, http.MethodGet, "/v1/roles", nil, http.StatusOK, PermRolesRead)
	if err != nil {
		return nil, err
	}
	return resp.Roles, nil
}

func (s *Session) GetRole(ctx context.Context, id string) (*RoleInfo, error) {
	return send[RoleInfo](ctx, s, http.MethodGet, "/v1/roles/"+id, nil, http.StatusOK, PermRolesRead)
}

func (s *Session) RoleTree(ctx context.Context) ([]RoleTreeNode, error) {
	resp, err := send[RoleTreeResponse](ctx, s, http.MethodGet, "/v1/roles/tree", nil, http.StatusOK, PermRolesRead)
	if err != nil {
		return nil, err
	}
	return resp.Roles, nil
}

func (s *Session) CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleInfo, error) {
	return send[RoleInfo](ctx, s, http.MethodPost, "/v1/roles", req, http.StatusCreated, PermRolesWrite)
}

func (s *Session) UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleInfo, error) {
	return send[RoleInfo](ctx, s, http.MethodPatch, "/v1/roles/"+id, req, http.StatusOK, PermRolesWrite)
}

func (s *Session) DeleteRole(ctx context.Context, id string) error {
	return sendNoContent(ctx, s, http.MethodDelete, "/v1/roles/"+id, nil, PermRolesWrite)
}

// SetRoleParent moves a role in the hierarchy; nil detaches it.
func (s *Session) SetRoleParent(ctx context.Context, id string, parentID *string) error {
	return sendNoContent(ctx, s, http.MethodPut, "/v1/roles/"+id+"/parent",
		SetParentRequest{ParentID: parentID}, PermRolesWrite)
}

func (s *Session) SetRolePermissions(ctx context.Context, id string, permissionIDs []string) error {
	return sendNoContent(ctx, s, http.MethodPut, "/v1/roles/"+id+"/permissions",
		SetRolePermissionsRequest{PermissionIDs: permissionIDs}, PermRolesWrite)
}

func (s *Session) ListPermissions(ctx context.Context) ([]PermissionInfo, error) {
	resp, err := send[ListPermissionsResponse](ctx, s, http.MethodGet, "/v1/permissions", nil, http.StatusOK, PermRolesRead)
	if err != nil {
		return nil, err
	}
	return resp.Permissions, nil
}

func (s *Session) CreatePermission(ctx context.Context, req CreatePermissionRequest) (*PermissionInfo, error) {
	return send[PermissionInfo](ctx, s, http.MethodPost, "/v1/permissions", req, http.StatusCreated, PermRolesWrite)
}

func (s *Session) DeletePermission(ctx context.Context, id string) error {
	return sendNoContent(ctx, s, http.MethodDelete, "/v1/permissions/"+id, nil, PermRolesWrite)
}

func (s *Session) GetUser(ctx context.Context, id string) (*UserInfo, error) {
	return send[UserInfo](ctx, s, http.MethodGet, "/v1/users/"+id, nil, http.StatusOK, PermUsersRead)
}

// AssignRoles replaces the user's roles by name.
func (s *Session) AssignRoles(ctx context.Context, userID string, roles []string) error {
	return sendNoContent(ctx, s, http.MethodPut, "/v1/users/"+userID+"/roles",
		AssignRolesRequest{Roles: roles}, PermUsersWrite)
}

// GrantPermissions replaces the user's direct permission grants.
func (s *Session) GrantPermissions(ctx context.Context, userID string, permissions []string) error {
	return sendNoContent(ctx, s, http.MethodPut, "/v1/users/"+userID+"/permissions",
		GrantPermissionsRequest{Permissions: permissions}, PermUsersWrite)
}

func (s *Session) SetUserStatus(ctx context.Context, userID, status string) error {
	return sendNoContent(ctx, s, http.MethodPut, "/v1/users/"+userID+"/status",
		SetStatusRequest{Status: status}, PermUsersWrite)
}
