package auth

// Permission represents a specific action that can be performed on a resource
type Permission string

const (
	// Test execution permissions
	ExecutionsRead    Permission = "executions.read"
	ExecutionsCreate  Permission = "executions.create"
	ExecutionsUpdate  Permission = "executions.update"
	ExecutionsComment Permission = "executions.comment"
	ExecutionsLink    Permission = "executions.link"

	// Reporting permissions
	ReportsRead Permission = "reports.read"

	// Tracker permissions
	TrackersReport Permission = "trackers.report"

	// System permissions
	SystemAdmin Permission = "system.admin"
)

// Role represents a user role with a set of permissions
type Role struct {
	Name        string
	Permissions []Permission
}

// HasPermission checks if the role has a specific permission
func (r *Role) HasPermission(permission Permission) bool {
	for _, p := range r.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Predefined roles
var (
	// AdminRole has all permissions
	AdminRole = &Role{
		Name: "admin",
		Permissions: []Permission{
			ExecutionsRead, ExecutionsCreate, ExecutionsUpdate,
			ExecutionsComment, ExecutionsLink,
			ReportsRead, TrackersReport, SystemAdmin,
		},
	}

	// TesterRole can record results, comment and report bugs
	TesterRole = &Role{
		Name: "tester",
		Permissions: []Permission{
			ExecutionsRead, ExecutionsCreate, ExecutionsUpdate,
			ExecutionsComment, ExecutionsLink,
			ReportsRead, TrackersReport,
		},
	}

	// ViewerRole can only read executions and reports
	ViewerRole = &Role{
		Name: "viewer",
		Permissions: []Permission{
			ExecutionsRead, ReportsRead,
		},
	}
)

// GetRoleByName returns a predefined role by name
// Returns nil if the role is not found
func GetRoleByName(name string) *Role {
	switch name {
	case "admin":
		return AdminRole
	case "tester":
		return TesterRole
	case "viewer":
		return ViewerRole
	default:
		return nil
	}
}

// HasPermission checks if any of the given roles grants the permission
func HasPermission(roles []string, permission Permission) bool {
	for _, roleName := range roles {
		role := GetRoleByName(roleName)
		if role != nil && role.HasPermission(permission) {
			return true
		}
	}
	return false
}
