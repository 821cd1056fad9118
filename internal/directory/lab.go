package directory

type Lab struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Code         string   `json:"code"`
	DepartmentID string   `json:"departmentId"`
	StaffIDs     []string `json:"staffIds"`
	HeadStaffID  string   `json:"headStaffId,omitempty"`
}

func (l Lab) IsStaff(userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range l.StaffIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsHeadStaff reports whether userID may edit the lab timetable. A head staff
// member who is no longer assigned to the lab loses the right.
func (l Lab) IsHeadStaff(userID string) bool {
	return l.HeadStaffID != "" && l.HeadStaffID == userID && l.IsStaff(userID)
}
