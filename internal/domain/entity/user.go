package entity

import "time"

// Role is the organizational role of a user
type Role string

const (
	RoleEmployee Role = "Employee"
	RoleManager  Role = "Manager"
	RoleAdmin    Role = "Admin"
)

// IsValid reports whether r is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanApprove reports whether users with this role may sit on an approver set
func (r Role) CanApprove() bool {
	return r == RoleManager || r == RoleAdmin
}

// User is a member of an organization.
// ManagerID is a weak reference resolved through the org chart, never an owned pointer.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	ManagerID string    `json:"manager_id,omitempty"`
	OrgID     string    `json:"org_id"`
	Currency  string    `json:"currency"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasManager reports whether the user has a manager reference
func (u *User) HasManager() bool {
	return u.ManagerID != ""
}

// IsEligibleApprover reports whether the user can be placed on an approver set
func (u *User) IsEligibleApprover() bool {
	return u != nil && u.Active && u.Role.CanApprove()
}
