package models

// Role is one of the fixed procurement roles.
type Role string

const (
	RoleAdmin     Role = "Admin"
	RolePM        Role = "PM"
	RolePurchaser Role = "Purchaser"
	RoleAP        Role = "AP"
	RoleField     Role = "Field"
)

// roleRank orders roles; a higher rank holds every permission of the lower ones.
var roleRank = map[Role]int{
	RoleAdmin:     5,
	RolePM:        4,
	RolePurchaser: 3,
	RoleAP:        2,
	RoleField:     1,
}

// String returns the string representation of a Role
func (r Role) String() string {
	return string(r)
}

// Rank returns the role's position in the hierarchy. Unknown roles rank 0.
func (r Role) Rank() int {
	return roleRank[r]
}

// ValidRoles returns all known roles, highest rank first.
func ValidRoles() []Role {
	return []Role{RoleAdmin, RolePM, RolePurchaser, RoleAP, RoleField}
}

// IsValidRole checks if a role string is one of the known roles.
func IsValidRole(role string) bool {
	_, ok := roleRank[Role(role)]
	return ok
}

// HasRole reports whether a user holding userRole satisfies any of the
// required roles: rank(userRole) >= min(rank(r) for r in required).
// An empty required set places no constraint.
func HasRole(required []Role, userRole Role) bool {
	if len(required) == 0 {
		return true
	}
	minRank := required[0].Rank()
	for _, r := range required[1:] {
		if rank := r.Rank(); rank < minRank {
			minRank = rank
		}
	}
	return userRole.Rank() >= minRank
}

// RolesFromStrings converts a slice of strings to []Role.
func RolesFromStrings(ss []string) []Role {
	result := make([]Role, len(ss))
	for i, s := range ss {
		result[i] = Role(s)
	}
	return result
}
