package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleOperator   = "operator"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func Valid(role string) bool {
	switch role {
	case RoleAdmin, RoleSupervisor, RoleOperator:
		return true
	}
	return false
}
