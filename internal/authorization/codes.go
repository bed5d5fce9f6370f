package authorization

// Permission codes. Matching is case-sensitive; codes are stored and
// compared exactly as written here.
const (
	PropertyCreate = "PROPERTY_CREATE"
	PropertyUpdate = "PROPERTY_UPDATE"
	PropertyView   = "PROPERTY_VIEW"
	PropertyDelete = "PROPERTY_DELETE"
	PropertyAssign = "PROPERTY_ASSIGN"

	UserCreate = "USER_CREATE"
	UserUpdate = "USER_UPDATE"
	UserDelete = "USER_DELETE"
	UserView   = "USER_VIEW"

	AuditView       = "AUDIT_VIEW"
	RoleAssign      = "ROLE_ASSIGN"
	PermissionGrant = "PERMISSION_GRANT"
)

// AllCodes is the seed catalogue in grant order.
var AllCodes = []string{
	PropertyCreate,
	PropertyUpdate,
	PropertyView,
	PropertyDelete,
	PropertyAssign,
	UserCreate,
	UserUpdate,
	UserDelete,
	UserView,
	AuditView,
	RoleAssign,
	PermissionGrant,
}
