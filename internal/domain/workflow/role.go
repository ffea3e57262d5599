package workflow

// Role is the workflow role of an actor
type Role string

const (
	RoleStaff    Role = "staff"
	RoleManager1 Role = "manager_1"
	RoleManager2 Role = "manager_2"
	RoleFinance  Role = "finance"
)

// RoleAny marks an edge that any role may fire
const RoleAny Role = "*"

var validRoles = map[Role]bool{
	RoleStaff:    true,
	RoleManager1: true,
	RoleManager2: true,
	RoleFinance:  true,
}

// IsValid returns true for a known role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// DecisionLevel returns the approval level a manager role decides at
func (r Role) DecisionLevel() (int, bool) {
	switch r {
	case RoleManager1:
		return 1, true
	case RoleManager2:
		return 2, true
	}
	return 0, false
}
