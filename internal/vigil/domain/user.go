package domain

import "strings"

type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// ParseRole normalises a role name. Unknown names yield ok=false.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleViewer, RoleEditor, RoleAdmin:
		return r, true
	default:
		return Role(s), false
	}
}

type Action string

const (
	ActionView       Action = "view"
	ActionUpload     Action = "upload"
	ActionDelete     Action = "delete"
	ActionChangeRole Action = "change-role"
)

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     Role   `json:"role"`
}
