package entity

import "strings"

type Role string

const (
	RoleSuperAdmin Role = "SUPERADMIN"
	RoleManager    Role = "MANAGER"
	RoleEmployee   Role = "EMPLOYEE"
	RoleConsultant Role = "CONSULTANT"
	RoleClient     Role = "CLIENT"
)

var Roles = []Role{RoleSuperAdmin, RoleManager, RoleEmployee, RoleConsultant, RoleClient}

func ParseRole(s string) (Role, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, r := range Roles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// IsStaff reports whether the role belongs to the agency back-office.
func (r Role) IsStaff() bool {
	return r != RoleClient && r != ""
}

// Actor is the authenticated caller of an operation. It is always passed explicitly.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}
