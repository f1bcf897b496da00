package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
	"github.com/aussiebroadwan/warden/internal/auth/store"
	"github.com/aussiebroadwan/warden/pkg/idx"
	"github.com/aussiebroadwan/warden/pkg/slogx"
)

var (
	roleNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _.-]{0,63}$`)
	permPartPattern = regexp.MustCompile(`^[a-z0-9*][a-z0-9_.*-]{0,63}$`)
)

// RBACResolver answers permission and role questions and guards the role
// hierarchy.
//
// Permission checks are flat: a user holds a permission when it is granted
// to them directly or owned by a role assigned to them directly. Parent
// roles are not consulted. The hierarchy is kept for display and is
// protected against cycles.
type RBACResolver struct {
	Store store.Store
}

// HasPermission reports whether user holds name ("resource:action").
func (r *RBACResolver) HasPermission(ctx context.Context, user domain.User, name string) (bool, error) {
	for _, p := range user.Permissions {
		if p == name {
			return true, nil
		}
	}

	for _, roleID := range user.RoleIDs {
		role, err := r.Store.Roles().GetRoleByID(ctx, roleID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return false, err
		}
		if len(role.PermissionIDs) == 0 {
			continue
		}
		perms, err := r.Store.Permissions().ListPermissionsByIDs(ctx, role.PermissionIDs)
		if err != nil {
			return false, err
		}
		for _, p := range perms {
			if p.Name() == name {
				return true, nil
			}
		}
	}
	return false, nil
}

// HasResourcePermission is HasPermission for a (resource, action) pair.
func (r *RBACResolver) HasResourcePermission(ctx context.Context, user domain.User, resource, action string) (bool, error) {
	return r.HasPermission(ctx, user, domain.PermissionName(resource, action))
}

// HasRole reports whether one of the user's roles is named exactly roleName.
func (r *RBACResolver) HasRole(ctx context.Context, user domain.User, roleName string) (bool, error) {
	for _, roleID := range user.RoleIDs {
		role, err := r.Store.Roles().GetRoleByID(ctx, roleID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return false, err
		}
		if role.Name == roleName {
			return true, nil
		}
	}
	return false, nil
}

// Permissions flattens the user's direct grants and the permissions of the
// directly assigned roles, sorted and de-duplicated.
func (r *RBACResolver) Permissions(ctx context.Context, user domain.User) ([]string, error) {
	set := make(map[string]struct{}, len(user.Permissions))
	for _, p := range user.Permissions {
		set[p] = struct{}{}
	}

	var permIDs []string
	for _, roleID := range user.RoleIDs {
		role, err := r.Store.Roles().GetRoleByID(ctx, roleID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		permIDs = append(permIDs, role.PermissionIDs...)
	}

	perms, err := r.Store.Permissions().ListPermissionsByIDs(ctx, permIDs)
	if err != nil {
		return nil, err
	}
	for _, p := range perms {
		set[p.Name()] = struct{}{}
	}
	return sortedKeys(set), nil
}

// RoleNames resolves the user's role ids to names.
func (r *RBACResolver) RoleNames(ctx context.Context, user domain.User) ([]string, error) {
	names := make([]string, 0, len(user.RoleIDs))
	for _, roleID := range user.RoleIDs {
		role, err := r.Store.Roles().GetRoleByID(ctx, roleID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		names = append(names, role.Name)
	}
	sort.Strings(names)
	return names, nil
}

// roleArena indexes every role by id with parent links as ids.
type roleArena struct {
	roles    map[string]domain.Role
	children map[string][]string
	roots    []string
}

func (r *RBACResolver) arena(ctx context.Context) (roleArena, error) {
	roles, err := r.Store.Roles().ListRoles(ctx)
	if err != nil {
		return roleArena{}, err
	}

	a := roleArena{
		roles:    make(map[string]domain.Role, len(roles)),
		children: make(map[string][]string),
	}
	for _, role := range roles {
		a.roles[role.ID] = role
	}
	for _, role := range roles {
		if role.ParentID != nil {
			if _, ok := a.roles[*role.ParentID]; ok {
				a.children[*role.ParentID] = append(a.children[*role.ParentID], role.ID)
				continue
			}
		}
		a.roots = append(a.roots, role.ID)
	}
	return a, nil
}

// descendants walks child links breadth-first from id. The visited set keeps
// the walk finite even if stored data already contains a cycle.
func (a roleArena) descendants(id string) map[string]struct{} {
	seen := make(map[string]struct{})
	queue := append([]string(nil), a.children[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		queue = append(queue, a.children[next]...)
	}
	return seen
}

// ValidateParent rejects making parentID the parent of childID when that is
// the role itself or one of its descendants.
func (r *RBACResolver) ValidateParent(ctx context.Context, parentID, childID string) error {
	if parentID == childID {
		return invalid("parent_id", "a role cannot be its own parent")
	}

	a, err := r.arena(ctx)
	if err != nil {
		return err
	}
	if _, ok := a.roles[childID]; !ok {
		return ErrNotFound
	}
	if _, ok := a.roles[parentID]; !ok {
		return invalid("parent_id", "parent role does not exist")
	}
	if _, ok := a.descendants(childID)[parentID]; ok {
		return invalid("parent_id", "parent role is a descendant of this role")
	}
	return nil
}

// RoleTree returns the hierarchy for display, roots sorted by name.
func (r *RBACResolver) RoleTree(ctx context.Context) ([]domain.RoleNode, error) {
	a, err := r.arena(ctx)
	if err != nil {
		return nil, err
	}
	perms, err := r.permissionNames(ctx)
	if err != nil {
		return nil, err
	}

	var build func(id string, seen map[string]bool) domain.RoleNode
	build = func(id string, seen map[string]bool) domain.RoleNode {
		seen[id] = true
		role := a.roles[id]
		node := domain.RoleNode{Role: role}
		for _, pid := range role.PermissionIDs {
			if name, ok := perms[pid]; ok {
				node.Permissions = append(node.Permissions, name)
			}
		}
		sort.Strings(node.Permissions)
		for _, child := range a.children[id] {
			if !seen[child] {
				node.Children = append(node.Children, build(child, seen))
			}
		}
		return node
	}

	seen := make(map[string]bool, len(a.roles))
	nodes := make([]domain.RoleNode, 0, len(a.roots))
	for _, id := range a.roots {
		nodes = append(nodes, build(id, seen))
	}
	return nodes, nil
}

func (r *RBACResolver) permissionNames(ctx context.Context) (map[string]string, error) {
	perms, err := r.Store.Permissions().ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(perms))
	for _, p := range perms {
		names[p.ID] = p.Name()
	}
	return names, nil
}

// RoleInput is the writable part of a role.
type RoleInput struct {
	Name          string
	Description   string
	ParentID      *string
	PermissionIDs []string
}

func (r *RBACResolver) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return r.Store.Roles().ListRoles(ctx)
}

func (r *RBACResolver) GetRole(ctx context.Context, id string) (domain.Role, error) {
	role, err := r.Store.Roles().GetRoleByID(ctx, id)
	return role, mapStoreErr(err)
}

// CreateRole checks name uniqueness, the parent and the permission ids, then
// writes the role.
func (r *RBACResolver) CreateRole(ctx context.Context, in RoleInput) (domain.Role, error) {
	l := slogx.FromContext(ctx)

	name := strings.TrimSpace(in.Name)
	if err := validateRoleName(name); err != nil {
		return domain.Role{}, err
	}

	if _, err := r.Store.Roles().GetRoleByName(ctx, name); err == nil {
		return domain.Role{}, fmt.Errorf("%w: role %q already exists", ErrConflict, name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Role{}, err
	}

	if in.ParentID != nil {
		if _, err := r.Store.Roles().GetRoleByID(ctx, *in.ParentID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Role{}, invalid("parent_id", "parent role does not exist")
			}
			return domain.Role{}, err
		}
	}

	permIDs, err := r.checkPermissionIDs(ctx, in.PermissionIDs)
	if err != nil {
		return domain.Role{}, err
	}

	role := domain.Role{
		ID:            idx.New().String(),
		Name:          name,
		Description:   strings.TrimSpace(in.Description),
		ParentID:      in.ParentID,
		PermissionIDs: permIDs,
	}
	if err := r.Store.Roles().CreateRole(ctx, role); err != nil {
		return domain.Role{}, mapStoreErr(err)
	}

	l.Info("role created", slog.String("role_id", role.ID), slog.String("name", role.Name))
	return r.GetRole(ctx, role.ID)
}

// UpdateRole renames a role or changes its description.
func (r *RBACResolver) UpdateRole(ctx context.Context, id, name, description string) (domain.Role, error) {
	role, err := r.GetRole(ctx, id)
	if err != nil {
		return domain.Role{}, err
	}

	name = strings.TrimSpace(name)
	if err := validateRoleName(name); err != nil {
		return domain.Role{}, err
	}

	if existing, err := r.Store.Roles().GetRoleByName(ctx, name); err == nil && existing.ID != id {
		return domain.Role{}, fmt.Errorf("%w: role %q already exists", ErrConflict, name)
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.Role{}, err
	}

	role.Name = name
	role.Description = strings.TrimSpace(description)
	if err := r.Store.Roles().UpdateRole(ctx, role); err != nil {
		return domain.Role{}, mapStoreErr(err)
	}
	return r.GetRole(ctx, id)
}

// SetParent moves a role under parentID, or to the top level when nil.
func (r *RBACResolver) SetParent(ctx context.Context, roleID string, parentID *string) error {
	if parentID != nil {
		if err := r.ValidateParent(ctx, *parentID, roleID); err != nil {
			return err
		}
	} else if _, err := r.GetRole(ctx, roleID); err != nil {
		return err
	}

	if err := r.Store.Roles().SetParent(ctx, roleID, parentID); err != nil {
		return mapStoreErr(err)
	}
	slogx.FromContext(ctx).Info("role parent changed", slog.String("role_id", roleID))
	return nil
}

// DeleteRole refuses roles that still have children or users.
func (r *RBACResolver) DeleteRole(ctx context.Context, roleID string) error {
	if _, err := r.GetRole(ctx, roleID); err != nil {
		return err
	}

	children, err := r.Store.Roles().ListChildren(ctx, roleID)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return fmt.Errorf("%w: role has %d child roles", ErrConflict, len(children))
	}

	assigned, err := r.Store.Users().CountUsersWithRole(ctx, roleID)
	if err != nil {
		return err
	}
	if assigned > 0 {
		return fmt.Errorf("%w: role is assigned to %d users", ErrConflict, assigned)
	}

	if err := r.Store.Roles().DeleteRole(ctx, roleID); err != nil {
		return mapStoreErr(err)
	}
	slogx.FromContext(ctx).Info("role deleted", slog.String("role_id", roleID))
	return nil
}

// SetRolePermissions replaces the permissions a role owns.
func (r *RBACResolver) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if _, err := r.GetRole(ctx, roleID); err != nil {
		return err
	}
	ids, err := r.checkPermissionIDs(ctx, permissionIDs)
	if err != nil {
		return err
	}
	return mapStoreErr(r.Store.Roles().SetRolePermissions(ctx, roleID, ids))
}

func (r *RBACResolver) checkPermissionIDs(ctx context.Context, ids []string) ([]string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	perms, err := r.Store.Permissions().ListPermissionsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(perms) != len(ids) {
		return nil, invalid("permission_ids", "unknown permission id")
	}
	return ids, nil
}

// PermissionInput is the writable part of a permission.
type PermissionInput struct {
	Resource    string
	Action      string
	Attributes  []string
	Description string
}

func (r *RBACResolver) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	return r.Store.Permissions().ListPermissions(ctx)
}

// CreatePermission rejects a duplicate (resource, action) pair.
func (r *RBACResolver) CreatePermission(ctx context.Context, in PermissionInput) (domain.Permission, error) {
	resource := strings.ToLower(strings.TrimSpace(in.Resource))
	action := strings.ToLower(strings.TrimSpace(in.Action))

	fe := fieldErrors{}
	if !permPartPattern.MatchString(resource) {
		fe.add("resource", "must be 1-64 lowercase letters, digits or _ . - *")
	}
	if !permPartPattern.MatchString(action) {
		fe.add("action", "must be 1-64 lowercase letters, digits or _ . - *")
	}
	if err := fe.err(); err != nil {
		return domain.Permission{}, err
	}

	if _, err := r.Store.Permissions().GetPermissionByPair(ctx, resource, action); err == nil {
		return domain.Permission{}, fmt.Errorf("%w: permission %s already exists", ErrConflict, domain.PermissionName(resource, action))
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Permission{}, err
	}

	p := domain.Permission{
		ID:          idx.New().String(),
		Resource:    resource,
		Action:      action,
		Attributes:  dedupe(in.Attributes),
		Description: strings.TrimSpace(in.Description),
	}
	if err := r.Store.Permissions().CreatePermission(ctx, p); err != nil {
		return domain.Permission{}, mapStoreErr(err)
	}
	return p, nil
}

func (r *RBACResolver) DeletePermission(ctx context.Context, id string) error {
	return mapStoreErr(r.Store.Permissions().DeletePermission(ctx, id))
}

// AssignRoles replaces the user's roles by name. Any unknown name fails the
// whole call with ErrInvalidRole.
func (r *RBACResolver) AssignRoles(ctx context.Context, userID string, roleNames []string) error {
	ids, err := r.roleIDs(ctx, roleNames)
	if err != nil {
		return err
	}
	if err := r.Store.Users().SetRoles(ctx, userID, ids); err != nil {
		return mapStoreErr(err)
	}
	slogx.FromContext(ctx).Info("user roles assigned", slog.String("user_id", userID), slog.Any("roles", roleNames))
	return nil
}

// GrantPermissions replaces the user's direct grants. Each name must be an
// existing "resource:action" permission.
func (r *RBACResolver) GrantPermissions(ctx context.Context, userID string, names []string) error {
	names = dedupe(names)
	for _, name := range names {
		resource, action, ok := strings.Cut(name, ":")
		if !ok {
			return invalid("permissions", fmt.Sprintf("%q is not resource:action", name))
		}
		if _, err := r.Store.Permissions().GetPermissionByPair(ctx, resource, action); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return invalid("permissions", fmt.Sprintf("unknown permission %q", name))
			}
			return err
		}
	}
	return mapStoreErr(r.Store.Users().SetPermissions(ctx, userID, names))
}

// roleIDs resolves names case-insensitively.
func (r *RBACResolver) roleIDs(ctx context.Context, names []string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range dedupe(names) {
		role, err := r.Store.Roles().GetRoleByName(ctx, strings.TrimSpace(name))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrInvalidRole, name)
			}
			return nil, err
		}
		ids = append(ids, role.ID)
	}
	return ids, nil
}

func validateRoleName(name string) error {
	if !roleNamePattern.MatchString(name) {
		return invalid("name", "must be 1-64 characters of letters, digits, space or _ . -")
	}
	return nil
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
