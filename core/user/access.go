package user

import "context"

// Access is the outcome of a role check.
type Access int

const (
	AccessNotLoaded Access = iota // the role lookup has not run yet
	AccessNoRole                  // the user has no role
	AccessDenied                  // the user's role is not allowed in the area
	AccessAllowed
)

func (a Access) String() string {
	switch a {
	case AccessNoRole:
		return "no role"
	case AccessDenied:
		return "denied"
	case AccessAllowed:
		return "allowed"
	default:
		return "not loaded"
	}
}

// Area is the set of roles allowed in a part of the application.
type Area []Role

var (
	AdminArea     = Area{RoleAdmin}
	AnalyticsArea = Area{RoleAdmin, RoleKepalaSekolah, RoleWaliKelas}
	StaffArea     = Area(AllRoles) // any role
)

// Check decides the access of role to the area.
func (a Area) Check(role Role) Access {
	if role == "" {
		return AccessNoRole
	}
	if role.In(a...) {
		return AccessAllowed
	}
	return AccessDenied
}

type RoleLookup interface {
	LookupRole(ctx context.Context, userID string) (Role, error)
}

// Gate caches the role of one user for the checks of a single request.
type Gate struct {
	lookup RoleLookup
	userID string
	loaded bool
	role   Role
}

func NewGate(lookup RoleLookup, userID string) *Gate {
	return &Gate{lookup: lookup, userID: userID}
}

// State reports the access to area without loading the role.
func (g *Gate) State(area Area) Access {
	if !g.loaded {
		return AccessNotLoaded
	}
	return area.Check(g.role)
}

// Check loads the role once, then decides the access to area.
func (g *Gate) Check(ctx context.Context, area Area) (Access, error) {
	if !g.loaded {
		role, err := g.lookup.LookupRole(ctx, g.userID)
		if err != nil {
			return AccessNotLoaded, err
		}
		g.role = role
		g.loaded = true
	}
	return area.Check(g.role), nil
}

// Role returns the loaded role, "" when not loaded or none.
func (g *Gate) Role() Role { return g.role }
