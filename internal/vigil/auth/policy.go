package auth

import "vigilstream/internal/vigil/domain"

type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

func (d Decision) String() string {
	if d {
		return "allow"
	}
	return "deny"
}

// rule is one cell group of the policy table: the decision for an owner
// and for a non-owner.
type rule struct {
	owner    Decision
	nonOwner Decision
}

var policy = map[domain.Role]map[domain.Action]rule{
	domain.RoleViewer: {
		domain.ActionView: {Allow, Allow},
	},
	domain.RoleEditor: {
		domain.ActionView:   {Allow, Allow},
		domain.ActionUpload: {Allow, Allow},
		domain.ActionDelete: {Allow, Deny},
	},
	domain.RoleAdmin: {
		domain.ActionView:       {Allow, Allow},
		domain.ActionUpload:     {Allow, Allow},
		domain.ActionDelete:     {Allow, Allow},
		domain.ActionChangeRole: {Allow, Allow},
	},
}

// Decide evaluates the fixed role/ownership/action table. Any role or
// action missing from the table is denied.
func Decide(role domain.Role, isOwner bool, action domain.Action) Decision {
	actions, ok := policy[role]
	if !ok {
		return Deny
	}
	r, ok := actions[action]
	if !ok {
		return Deny
	}
	if isOwner {
		return r.owner
	}
	return r.nonOwner
}

// Roles lists every role known to the policy.
func Roles() []domain.Role {
	return []domain.Role{domain.RoleViewer, domain.RoleEditor, domain.RoleAdmin}
}

// Actions lists every action known to the policy.
func Actions() []domain.Action {
	return []domain.Action{domain.ActionView, domain.ActionUpload, domain.ActionDelete, domain.ActionChangeRole}
}
