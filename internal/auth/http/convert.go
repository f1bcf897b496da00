package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
	"github.com/aussiebroadwan/warden/pkg/authsdk"
	"github.com/aussiebroadwan/warden/pkg/httpx"
)

func clientMeta(r *http.Request) domain.ClientMeta {
	return domain.ClientMeta{
		IP:        httpx.IPKeyExtractor(r),
		UserAgent: r.UserAgent(),
	}
}

func seconds(d time.Duration) int { return int(d / time.Second) }

func toProfile(p domain.Profile) authsdk.Profile {
	return authsdk.Profile{
		UserID:        p.UserID,
		Email:         p.Email,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		Roles:         nonNil(p.Roles),
		Permissions:   nonNil(p.Permissions),
		Status:        string(p.Status),
		EmailVerified: p.EmailVerified,
		MFAEnabled:    p.MFAEnabled,
	}
}

func toTokenResponse(pair domain.TokenPair, profile domain.Profile) authsdk.TokenResponse {
	user := toProfile(profile)
	return authsdk.TokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        seconds(pair.ExpiresIn),
		RefreshExpiresIn: seconds(pair.RefreshExpiresIn),
		User:             &user,
	}
}

func toLoginResponse(res domain.LoginResult) authsdk.LoginResponse {
	if res.MFARequired {
		return authsdk.LoginResponse{
			MFARequired: true,
			MFAToken:    res.MFAToken,
			MFAMethods:  res.MFAMethods,
		}
	}
	return authsdk.LoginResponse{TokenResponse: toTokenResponse(*res.Pair, res.Profile)}
}

func toUserInfo(u domain.User) authsdk.UserInfo {
	info := authsdk.UserInfo{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Status:        string(u.Status),
		EmailVerified: u.EmailVerified,
		MFAEnabled:    u.MFAEnabled(),
		Provider:      u.Provider,
		CreatedAt:     u.CreatedAt,
	}
	if u.LockedUntil != nil {
		until := u.LockedUntil.UTC()
		info.LockedUntil = &until
	}
	return info
}

func toSessionInfo(rec domain.TokenRecord) authsdk.SessionInfo {
	return authsdk.SessionInfo{
		ID:        rec.JTI,
		IP:        rec.IP,
		UserAgent: rec.UserAgent,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}
}

// toRoleInfo resolves permission ids to names with names, the id -> name
// index of all permissions.
func toRoleInfo(role domain.Role, names map[string]string) authsdk.RoleInfo {
	perms := make([]string, 0, len(role.PermissionIDs))
	for _, id := range role.PermissionIDs {
		if n, ok := names[id]; ok {
			perms = append(perms, n)
		}
	}
	return authsdk.RoleInfo{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		ParentID:    role.ParentID,
		Permissions: perms,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

func toRoleTree(nodes []domain.RoleNode) []authsdk.RoleTreeNode {
	out := make([]authsdk.RoleTreeNode, len(nodes))
	for i, n := range nodes {
		out[i] = authsdk.RoleTreeNode{
			ID:          n.Role.ID,
			Name:        n.Role.Name,
			Permissions: nonNil(n.Permissions),
		}
		if len(n.Children) > 0 {
			out[i].Children = toRoleTree(n.Children)
		}
	}
	return out
}

func toPermissionInfo(p domain.Permission) authsdk.PermissionInfo {
	return authsdk.PermissionInfo{
		ID:          p.ID,
		Name:        p.Name(),
		Resource:    p.Resource,
		Action:      p.Action,
		Attributes:  p.Attributes,
		Description: p.Description,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
