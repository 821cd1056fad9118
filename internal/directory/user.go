package directory

// Role is the account role. HOD and lab coordinator are department capacities
// (see Department), not separate accounts, except for the legacy "hod" role value.
type Role string

const (
	RoleStudent  Role = "student"
	RoleFaculty  Role = "faculty"
	RoleLabStaff Role = "lab_staff"
	RoleHOD      Role = "hod"
	RoleOthers   Role = "others"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleLabStaff, RoleHOD, RoleOthers:
		return true
	}
	return false
}

// FacultyLevel reports whether the role may recommend student requests
// or hold a department capacity.
func (r Role) FacultyLevel() bool {
	return r == RoleFaculty || r == RoleHOD
}

type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           Role   `json:"role"`
	DepartmentCode string `json:"departmentCode,omitempty"`
}
