// Package directory holds the employee records the workflow consults for
// authorization (direct-manager relationships) and notification addresses.
package directory

import (
	"time"

	id "expenseflow/pkg/domain"
)

// Employee is one directory record. ManagerID points at the employee's
// direct manager, or is nil for top-level staff.
type Employee struct {
	ID        id.EmployeeID  `json:"id"`
	Email     string         `json:"email"`
	FullName  string         `json:"fullName"`
	Role      id.Role        `json:"role"`
	ManagerID *id.EmployeeID `json:"managerId,omitempty"`
	Active    bool           `json:"active"`
	CreatedAt time.Time      `json:"createdAt"`
}
