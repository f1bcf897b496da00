package domain

import "time"

type Role struct {
	ID            string
	Name          string // unique, compared case-insensitively
	Description   string
	ParentID      *string
	PermissionIDs []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Permission grants Action on Resource. The (Resource, Action) pair is unique.
type Permission struct {
	ID          string
	Resource    string
	Action      string
	Attributes  []string // optional fine-grained qualifiers
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Name is the flattened form carried in tokens, e.g. "roles:write".
func (p Permission) Name() string { return PermissionName(p.Resource, p.Action) }

func PermissionName(resource, action string) string { return resource + ":" + action }

// RoleNode is one entry of the role hierarchy as displayed to administrators.
type RoleNode struct {
	Role        Role
	Permissions []string
	Children    []RoleNode
}
