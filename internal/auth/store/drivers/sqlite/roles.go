package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
)

type rolesRepo struct {
	db dbtx
}

const roleColumns = `id, name, description, parent_id, created_at, updated_at`

func scanRole(row interface{ Scan(dest ...any) error }) (domain.Role, error) {
	var (
		r        domain.Role
		parentID sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &parentID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return domain.Role{}, err
	}
	r.ParentID = mapNullStringPtr(parentID)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func (r *rolesRepo) getRole(ctx context.Context, where string, args ...any) (domain.Role, error) {
	role, err := scanRole(r.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE `+where, args...))
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	role.PermissionIDs, err = queryStrings(ctx, r.db,
		`SELECT permission_id FROM role_permissions WHERE role_id = ? ORDER BY permission_id`, role.ID)
	if err != nil {
		return domain.Role{}, err
	}
	return role, nil
}

func (r *rolesRepo) GetRoleByID(ctx context.Context, id string) (domain.Role, error) {
	return r.getRole(ctx, `id = ?`, id)
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	return r.getRole(ctx, `name = ? COLLATE NOCASE`, name)
}

func (r *rolesRepo) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return r.listRoles(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
}

func (r *rolesRepo) ListChildren(ctx context.Context, parentID string) ([]domain.Role, error) {
	return r.listRoles(ctx, `SELECT `+roleColumns+` FROM roles WHERE parent_id = ? ORDER BY name`, parentID)
}

func (r *rolesRepo) listRoles(ctx context.Context, query string, args ...any) ([]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var roles []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(roles) == 0 {
		return roles, nil
	}

	// Attach permissions in a second pass once the role cursor is closed.
	index := make(map[string]int, len(roles))
	ids := make([]string, len(roles))
	for i, role := range roles {
		index[role.ID] = i
		ids[i] = role.ID
	}

	prow, err := r.db.QueryContext(ctx,
		`SELECT role_id, permission_id FROM role_permissions WHERE role_id IN (`+placeholders(len(ids))+`)
		ORDER BY role_id, permission_id`, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer prow.Close()

	for prow.Next() {
		var roleID, permID string
		if err := prow.Scan(&roleID, &permID); err != nil {
			return nil, err
		}
		i := index[roleID]
		roles[i].PermissionIDs = append(roles[i].PermissionIDs, permID)
	}
	return roles, prow.Err()
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	now := time.Now().UTC()
	if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}
	if role.UpdatedAt.IsZero() {
		role.UpdatedAt = role.CreatedAt
	}

	return atomically(ctx, r.db, func(q dbtx) error {
		_, err := q.ExecContext(ctx, `INSERT INTO roles (`+roleColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			role.ID, role.Name, role.Description, mapOptionalString(role.ParentID),
			utc(role.CreatedAt), utc(role.UpdatedAt))
		if err != nil {
			return mapConstraint(err)
		}
		return replaceRolePermissions(ctx, q, role.ID, role.PermissionIDs)
	})
}

func (r *rolesRepo) UpdateRole(ctx context.Context, role domain.Role) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE roles SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		role.Name, role.Description, time.Now().UTC(), role.ID)
	if err != nil {
		return mapConstraint(err)
	}
	return requireAffected(res, nil)
}

func (r *rolesRepo) SetParent(ctx context.Context, roleID string, parentID *string) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE roles SET parent_id = ?, updated_at = ? WHERE id = ?`,
		mapOptionalString(parentID), time.Now().UTC(), roleID))
}

func (r *rolesRepo) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	return atomically(ctx, r.db, func(q dbtx) error {
		if err := requireAffected(q.ExecContext(ctx,
			`UPDATE roles SET updated_at = ? WHERE id = ?`, time.Now().UTC(), roleID)); err != nil {
			return err
		}
		return replaceRolePermissions(ctx, q, roleID, permissionIDs)
	})
}

// DeleteRole detaches the role's permissions before removing the row.
func (r *rolesRepo) DeleteRole(ctx context.Context, roleID string) error {
	return atomically(ctx, r.db, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = ?`, roleID); err != nil {
			return err
		}
		return requireAffected(q.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, roleID))
	})
}

func replaceRolePermissions(ctx context.Context, q dbtx, roleID string, permissionIDs []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = ?`, roleID); err != nil {
		return err
	}
	for _, permID := range permissionIDs {
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO role_permissions (role_id, permission_id) VALUES (?, ?)`,
			roleID, permID); err != nil {
			return err
		}
	}
	return nil
}
