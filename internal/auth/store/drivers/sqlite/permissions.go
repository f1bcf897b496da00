package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
)

type permissionsRepo struct {
	db dbtx
}

const permissionColumns = `id, resource, action, attributes, description, created_at, updated_at`

func scanPermission(row interface{ Scan(dest ...any) error }) (domain.Permission, error) {
	var (
		p          domain.Permission
		attributes string
	)
	if err := row.Scan(&p.ID, &p.Resource, &p.Action, &attributes, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Permission{}, err
	}
	p.Attributes = splitAndFilter(attributes)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (r *permissionsRepo) GetPermissionByID(ctx context.Context, id string) (domain.Permission, error) {
	p, err := scanPermission(r.db.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE id = ?`, id))
	if err != nil {
		return domain.Permission{}, mapNotFound(err)
	}
	return p, nil
}

func (r *permissionsRepo) GetPermissionByPair(ctx context.Context, resource, action string) (domain.Permission, error) {
	p, err := scanPermission(r.db.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE resource = ? AND action = ?`, resource, action))
	if err != nil {
		return domain.Permission{}, mapNotFound(err)
	}
	return p, nil
}

func (r *permissionsRepo) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	return r.list(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY resource, action`)
}

func (r *permissionsRepo) ListPermissionsByIDs(ctx context.Context, ids []string) ([]domain.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id IN (`+placeholders(len(ids))+`)
		ORDER BY resource, action`, stringArgs(ids)...)
}

func (r *permissionsRepo) list(ctx context.Context, query string, args ...any) ([]domain.Permission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *permissionsRepo) CreatePermission(ctx context.Context, p domain.Permission) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO permissions (`+permissionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Resource, p.Action, strings.Join(p.Attributes, " "), p.Description,
		utc(p.CreatedAt), utc(p.UpdatedAt))
	return mapConstraint(err)
}

// DeletePermission also drops direct user grants of the same name.
func (r *permissionsRepo) DeletePermission(ctx context.Context, id string) error {
	return atomically(ctx, r.db, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM role_permissions WHERE permission_id = ?`, id); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM user_permissions
			WHERE name = (SELECT resource || ':' || action FROM permissions WHERE id = ?)`, id); err != nil {
			return err
		}
		return requireAffected(q.ExecContext(ctx, `DELETE FROM permissions WHERE id = ?`, id))
	})
}
