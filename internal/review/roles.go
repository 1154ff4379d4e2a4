package review

// Role is the closed set of actor roles recognized by the review workflow.
type Role string

const (
	RoleSubscriber    Role = "subscriber"
	RoleEmployee      Role = "employee"
	RoleAttorneyAdmin Role = "attorney_admin"
	RoleSuperAdmin    Role = "super_admin"
)

// ParseRole maps a JWT role claim onto the closed enum. Unknown strings get
// no capabilities rather than an error, so a stale token cannot widen access.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleSubscriber, RoleEmployee, RoleAttorneyAdmin, RoleSuperAdmin:
		return Role(s)
	default:
		return ""
	}
}

// Capability is one gated review action.
type Capability string

const (
	CapClaim    Capability = "claim"
	CapApprove  Capability = "approve"
	CapReject   Capability = "reject"
	CapBulkOps  Capability = "bulk_ops"
	CapReassign Capability = "reassign"
)

// capabilities is the authoritative role-to-capability table. Subscribers and
// employees author and own letters but never review them.
var capabilities = map[Role]map[Capability]bool{
	RoleAttorneyAdmin: {
		CapClaim:   true,
		CapApprove: true,
		CapReject:  true,
	},
	RoleSuperAdmin: {
		CapClaim:    true,
		CapApprove:  true,
		CapReject:   true,
		CapBulkOps:  true,
		CapReassign: true,
	},
}

// Can reports whether the role holds the given capability.
func (r Role) Can(c Capability) bool {
	return capabilities[r][c]
}

// IsReviewer reports whether the role participates in the review queue at all.
func (r Role) IsReviewer() bool {
	return r.Can(CapClaim)
}
