package usecase

import "github.com/xavierca1/immigration-crm/internal/entity"

type Operation string

const (
	OpAssign             Operation = "assign"
	OpReassign           Operation = "reassign"
	OpAssignToConsultant Operation = "assign_to_consultant"
	OpAddConsultantNote  Operation = "add_consultant_note"
	OpEnterConsultation  Operation = "enter_consultation"
	OpConvert            Operation = "convert"
	OpArchive            Operation = "archive"
	OpList               Operation = "list"
	OpView               Operation = "view"
	OpStats              Operation = "stats"
)

type rule struct {
	roles []entity.Role
	// from is the set of statuses the operation accepts; nil means any status.
	from []entity.Status
	// to is the resulting status for transitions, empty for operations that keep the status.
	to entity.Status
}

var (
	staffRoles  = []entity.Role{entity.RoleSuperAdmin, entity.RoleManager, entity.RoleEmployee, entity.RoleConsultant}
	activeStage = []entity.Status{entity.StatusPaid, entity.StatusInConsultation}
)

// permissions is the single source of truth for who may do what, from which status.
var permissions = map[Operation]rule{
	OpAssign: {
		roles: []entity.Role{entity.RoleSuperAdmin},
		from:  []entity.Status{entity.StatusNew},
		to:    entity.StatusAssigned,
	},
	OpAssignToConsultant: {
		roles: []entity.Role{entity.RoleEmployee, entity.RoleManager},
		from:  []entity.Status{entity.StatusAssigned},
		to:    entity.StatusPaid,
	},
	OpEnterConsultation: {
		roles: []entity.Role{entity.RoleConsultant, entity.RoleEmployee, entity.RoleManager},
		from:  []entity.Status{entity.StatusPaid},
		to:    entity.StatusInConsultation,
	},
	OpConvert: {
		roles: []entity.Role{entity.RoleConsultant, entity.RoleEmployee, entity.RoleManager},
		from:  activeStage,
		to:    entity.StatusConverted,
	},
	OpArchive: {
		roles: []entity.Role{entity.RoleSuperAdmin, entity.RoleManager},
		from:  []entity.Status{entity.StatusNew, entity.StatusAssigned, entity.StatusPaid, entity.StatusInConsultation},
		to:    entity.StatusArchived,
	},
	OpAddConsultantNote: {
		roles: []entity.Role{entity.RoleConsultant, entity.RoleEmployee, entity.RoleManager},
		from:  activeStage,
	},
	OpReassign: {
		roles: []entity.Role{entity.RoleSuperAdmin, entity.RoleManager},
		from:  []entity.Status{entity.StatusAssigned, entity.StatusPaid, entity.StatusInConsultation},
	},
	OpList:  {roles: staffRoles},
	OpView:  {roles: staffRoles},
	OpStats: {roles: staffRoles},
}

// RoleAllowed reports whether role may invoke op at all, regardless of the prospect's status.
func RoleAllowed(role entity.Role, op Operation) bool {
	r, ok := permissions[op]
	if !ok {
		return false
	}
	for _, allowed := range r.roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// StatusAllowed reports whether op accepts a prospect currently in status.
func StatusAllowed(op Operation, status entity.Status) bool {
	r, ok := permissions[op]
	if !ok {
		return false
	}
	if r.from == nil {
		return true
	}
	for _, s := range r.from {
		if s == status {
			return true
		}
	}
	return false
}

// CanPerform combines the role and status checks.
func CanPerform(role entity.Role, op Operation, current entity.Status) bool {
	return RoleAllowed(role, op) && StatusAllowed(op, current)
}

// TargetStatus returns the status op moves a prospect to, if op is a transition.
func TargetStatus(op Operation) (entity.Status, bool) {
	r, ok := permissions[op]
	if !ok || r.to == "" {
		return "", false
	}
	return r.to, true
}

// AllowedOperations lists what role may do on a prospect in status. The detail endpoint
// returns it as allowed_operations.
func AllowedOperations(role entity.Role, status entity.Status) []Operation {
	ordered := []Operation{
		OpAssign, OpReassign, OpAssignToConsultant, OpAddConsultantNote,
		OpEnterConsultation, OpConvert, OpArchive,
	}
	ops := []Operation{}
	for _, op := range ordered {
		if CanPerform(role, op, status) {
			ops = append(ops, op)
		}
	}
	return ops
}
