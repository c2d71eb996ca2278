package rbac

type Role string
type Action string

const (
	RoleViewer  Role = "viewer"
	RoleEditor  Role = "editor"
	RoleAuditor Role = "auditor"
	RoleAdmin   Role = "admin"
)

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
	ActionAudit Action = "audit"
	ActionAdmin Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleAuditor:
		return action == ActionRead || action == ActionAudit
	case RoleEditor:
		return action == ActionRead || action == ActionWrite
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAuditor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
