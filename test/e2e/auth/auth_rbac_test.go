package auth_test

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/warden/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// adminEnv makes every new account an administrator so the suite can reach
// the admin endpoints without a seeding step.
var adminEnv = map[string]string{"AUTH_DEFAULT_ROLES": "admin"}

// TestRoleAdministration builds a small hierarchy through the API.
func TestRoleAdministration(t *testing.T) {
	client := setupAuthContainer(t, adminEnv)
	ctx := t.Context()

	admin := registerAndLogin(t, client, "root@example.com")
	require.Contains(t, admin.Profile().Permissions, authsdk.PermRolesWrite)

	perm, err := admin.CreatePermission(ctx, authsdk.CreatePermissionRequest{Resource: "reports", Action: "export"})
	require.NoError(t, err)
	require.Equal(t, "reports:export", perm.Name)

	parent, err := admin.CreateRole(ctx, authsdk.CreateRoleRequest{Name: "staff"})
	require.NoError(t, err)
	child, err := admin.CreateRole(ctx, authsdk.CreateRoleRequest{
		Name:          "auditor",
		ParentID:      &parent.ID,
		PermissionIDs: []string{perm.ID},
	})
	require.NoError(t, err)

	// A parent cannot become its own descendant.
	err = admin.SetRoleParent(ctx, parent.ID, &child.ID)
	requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeValidationFailed)

	// Deleting a role with children is refused.
	err = admin.DeleteRole(ctx, parent.ID)
	requireAPIError(t, err, http.StatusConflict, authsdk.ErrorCodeConflict)

	tree, err := admin.RoleTree(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, tree)

	got, err := admin.GetRole(ctx, child.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"reports:export"}, got.Permissions)
}

// TestPermissionChecks verifies grants are flat over directly assigned roles
// and are enforced server-side.
func TestPermissionChecks(t *testing.T) {
	client := setupAuthContainer(t, adminEnv)
	ctx := t.Context()

	admin := registerAndLogin(t, client, "root@example.com")
	member := registerAndLogin(t, client, "member@example.com")
	memberID := member.Profile().UserID

	require.NoError(t, admin.AssignRoles(ctx, memberID, []string{"user"}))
	err := admin.AssignRoles(ctx, memberID, []string{"no-such-role"})
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeInvalidRole)

	// New grants show up in the next token.
	member, err = client.AuthenticateWithPassword(ctx, "member@example.com", testPassword)
	require.NoError(t, err)
	require.Equal(t, []string{"user"}, member.Profile().Roles)

	allowed, err := client.Check(ctx, member.AccessToken(), authsdk.PermRolesRead)
	require.NoError(t, err)
	require.False(t, allowed)

	// Skip the local check so the server answers.
	client.CheckPermissions = false
	_, err = member.ListRoles(ctx)
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeInsufficientPermission)

	require.NoError(t, admin.GrantPermissions(ctx, memberID, []string{authsdk.PermRolesRead}))
	allowed, err = client.Check(ctx, member.AccessToken(), authsdk.PermRolesRead)
	require.NoError(t, err)
	require.True(t, allowed)
}

// TestSuspendEndsSessions verifies a status change revokes live tokens.
func TestSuspendEndsSessions(t *testing.T) {
	client := setupAuthContainer(t, adminEnv)
	ctx := t.Context()

	admin := registerAndLogin(t, client, "root@example.com")
	member := registerAndLogin(t, client, "member@example.com")

	require.NoError(t, admin.SetUserStatus(ctx, member.Profile().UserID, "SUSPENDED"))

	_, err := client.Validate(ctx, member.AccessToken())
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeTokenRevoked)

	_, err = client.Login(ctx, "member@example.com", testPassword)
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeAccountDisabled)

	info, err := admin.GetUser(ctx, member.Profile().UserID)
	require.NoError(t, err)
	require.Equal(t, "SUSPENDED", info.Status)
}
