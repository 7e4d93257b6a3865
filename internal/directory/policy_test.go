package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	id "expenseflow/pkg/domain"
)

func TestTeamPolicyCanActOn(t *testing.T) {
	policy := TeamPolicy{}

	manager := &Employee{ID: id.NewEmployeeID(), Role: id.RoleApprover}
	other := &Employee{ID: id.NewEmployeeID(), Role: id.RoleApprover}

	managerID := manager.ID
	report := &Employee{ID: id.NewEmployeeID(), Role: id.RoleEmployee, ManagerID: &managerID}
	orphan := &Employee{ID: id.NewEmployeeID(), Role: id.RoleEmployee}

	t.Run("direct manager may act", func(t *testing.T) {
		assert.True(t, policy.CanActOn(manager, report))
	})

	t.Run("unrelated approver may not act", func(t *testing.T) {
		assert.False(t, policy.CanActOn(other, report))
	})

	t.Run("employee without manager has no eligible approver", func(t *testing.T) {
		assert.False(t, policy.CanActOn(manager, orphan))
	})

	t.Run("nil inputs never authorize", func(t *testing.T) {
		assert.False(t, policy.CanActOn(nil, report))
		assert.False(t, policy.CanActOn(manager, nil))
	})
}
