// Package authority decides who gives final sign-off on a department's requests.
package authority

import (
	"labportal/internal/apperr"
	"labportal/internal/directory"
)

// CurrentApprover returns the capacity holding final approval power for d.
// The stored choice is honoured only while both the HOD and the lab coordinator
// are assigned; otherwise the HOD holds it, whatever the stored value says.
func CurrentApprover(d directory.Department) directory.Authority {
	if d.FullyStaffed() && d.ApprovalAuthority == directory.AuthorityLabCoordinator {
		return directory.AuthorityLabCoordinator
	}
	return directory.AuthorityHOD
}

// CurrentApproverID returns the user who may give final approval right now, or ""
// when the capacity is vacant.
func CurrentApproverID(d directory.Department) string {
	return d.HolderOf(CurrentApprover(d))
}

// Assignable reports whether the department may switch its final authority at all.
func Assignable(d directory.Department) bool {
	return d.FullyStaffed()
}

// Normalize coerces a stored authority to the value CurrentApprover would report,
// so persisted rows never claim a lab coordinator authority the department cannot honour.
func Normalize(d *directory.Department) {
	d.ApprovalAuthority = CurrentApprover(*d)
}

// Set changes the final authority of d in place. A non-empty coordinatorID assigns
// the lab coordinator first. Both capacities must be filled afterwards, else
// ErrMissingAssignment and d is left untouched.
func Set(d *directory.Department, role directory.Authority, coordinatorID string) error {
	if !role.Valid() {
		return apperr.ErrValidation.With("unknown approval authority %q", role)
	}

	next := *d
	if coordinatorID != "" {
		next.LabCoordinatorID = coordinatorID
	}
	if next.HODID == "" {
		return apperr.ErrMissingAssignment.With("department %s has no HOD", d.Code)
	}
	if next.LabCoordinatorID == "" {
		return apperr.ErrMissingAssignment.With("department %s has no lab coordinator", d.Code)
	}

	next.ApprovalAuthority = role
	*d = next
	return nil
}
