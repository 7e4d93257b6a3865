package directory

// TeamPolicy decides whether an approver may act on an employee's request.
// The relationship is the owner's ManagerID pointing at the approver.
type TeamPolicy struct{}

// CanActOn reports whether approver is owner's direct manager.
func (TeamPolicy) CanActOn(approver *Employee, owner *Employee) bool {
	if approver == nil || owner == nil || owner.ManagerID == nil {
		return false
	}
	return *owner.ManagerID == approver.ID
}
