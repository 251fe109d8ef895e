package enums

import "fmt"

// ActorRole is the caller role carried in access tokens. Permission policy
// itself lives outside the dispatch engine; the role only selects which
// transition rules apply.
type ActorRole string

const (
	ActorRoleRunner     ActorRole = "runner"
	ActorRoleDispatcher ActorRole = "dispatcher"
	ActorRoleAdmin      ActorRole = "admin"
	ActorRoleSystem     ActorRole = "system"
)

var validActorRoles = []ActorRole{
	ActorRoleRunner,
	ActorRoleDispatcher,
	ActorRoleAdmin,
	ActorRoleSystem,
}

func (r ActorRole) String() string {
	return string(r)
}

func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanDispatch reports whether the role may perform dispatcher actions.
func (r ActorRole) CanDispatch() bool {
	return r == ActorRoleDispatcher || r == ActorRoleAdmin || r == ActorRoleSystem
}

func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
