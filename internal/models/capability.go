package models

// Capability names a permission checked by handlers and services instead of raw role names.
type Capability string

const (
	CapManageSections   Capability = "manage_sections"
	CapManageCourses    Capability = "manage_courses"
	CapManageTimetables Capability = "manage_timetables"
	CapViewTimetables   Capability = "view_timetables"
	CapManageQuizzes    Capability = "manage_quizzes"
	CapTakeQuizzes      Capability = "take_quizzes"
	CapStudentAffairs   Capability = "student_affairs"
)

var allCapabilities = []Capability{
	CapManageSections,
	CapManageCourses,
	CapManageTimetables,
	CapViewTimetables,
	CapManageQuizzes,
	CapTakeQuizzes,
	CapStudentAffairs,
}

// Faculty only get view access by default; anything more is granted per user.
var roleCapabilities = map[UserRole][]Capability{
	RoleAdmin:   allCapabilities,
	RoleFaculty: {CapViewTimetables},
	RoleTeacher: {CapViewTimetables, CapManageQuizzes},
	RoleStudent: {CapViewTimetables, CapTakeQuizzes},
	RoleParent:  {CapViewTimetables},
}

// IsKnownCapability reports whether name matches a defined capability.
func IsKnownCapability(name string) bool {
	for _, c := range allCapabilities {
		if string(c) == name {
			return true
		}
	}
	return false
}

// CapabilitiesFor merges the role defaults with explicitly granted permissions.
// Grants are honoured for faculty only.
func CapabilitiesFor(role UserRole, granted []string) []Capability {
	defaults := roleCapabilities[role]
	out := make([]Capability, 0, len(defaults)+len(granted))
	seen := make(map[Capability]struct{}, len(defaults)+len(granted))
	add := func(c Capability) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for _, c := range defaults {
		add(c)
	}
	if role == RoleFaculty {
		for _, name := range granted {
			if IsKnownCapability(name) {
				add(Capability(name))
			}
		}
	}
	return out
}

// HasCapability is the single permission check for a user record.
func HasCapability(user *User, capability Capability) bool {
	if user == nil || !user.Active {
		return false
	}
	for _, c := range CapabilitiesFor(user.Role, user.Permissions) {
		if c == capability {
			return true
		}
	}
	return false
}
