package domain

// Role is the closed set of actor roles the authentication layer vouches for.
// Authorization is expressed as table-driven guards over roles, never as a
// type hierarchy.
type Role string

const (
	RoleEmployee     Role = "EMPLOYEE"
	RoleApprover     Role = "APPROVER"
	RoleFinanceAdmin Role = "FINANCE_ADMIN"
	RoleSystemAdmin  Role = "SYSTEM_ADMIN"
)

// IsValid reports whether r is one of the defined roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleEmployee, RoleApprover, RoleFinanceAdmin, RoleSystemAdmin:
		return true
	}
	return false
}
