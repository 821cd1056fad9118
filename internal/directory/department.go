package directory

// Authority names the capacity that gives final sign-off on a department's requests.
type Authority string

const (
	AuthorityHOD            Authority = "hod"
	AuthorityLabCoordinator Authority = "lab_coordinator"
)

func (a Authority) Valid() bool {
	return a == AuthorityHOD || a == AuthorityLabCoordinator
}

type Department struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Code              string    `json:"code"`
	HODID             string    `json:"hodId,omitempty"`
	LabCoordinatorID  string    `json:"labCoordinatorId,omitempty"`
	ApprovalAuthority Authority `json:"highestApprovalAuthority"`
}

// HolderOf returns the user currently holding capacity a, or "" when unassigned.
func (d Department) HolderOf(a Authority) string {
	switch a {
	case AuthorityHOD:
		return d.HODID
	case AuthorityLabCoordinator:
		return d.LabCoordinatorID
	}
	return ""
}

// FullyStaffed reports whether both capacities are assigned.
func (d Department) FullyStaffed() bool {
	return d.HODID != "" && d.LabCoordinatorID != ""
}
