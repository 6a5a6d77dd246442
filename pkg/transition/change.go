package transition

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/platinummonkey/warden/pkg/accounts"
)

// Change is a requested modification to a user. Nil fields are left alone.
type Change struct {
	Email               *string
	Username            *string
	FullName            *string
	SystemRole          *accounts.SystemRole
	UserType            *accounts.UserType
	Status              *accounts.Status
	Team                *Association
	TeamRole            *accounts.MembershipRole
	EnterpriseGroup     *Association
	EnterpriseGroupRole *accounts.MembershipRole
}

// Association moves a user into a tenant, or out of it when ID is nil
type Association struct {
	ID   *int64
	Role accounts.MembershipRole
}

// IsZero reports whether the change requests nothing
func (c Change) IsZero() bool {
	return c == Change{}
}

// ParseChange converts a loosely typed attribute map, as decoded from a
// request body, into a Change. Unknown attributes are rejected.
func ParseChange(attrs map[string]any) (Change, error) {
	var c Change

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := attrs[key]
		switch key {
		case "email", "username", "full_name":
			s, err := stringValue(key, v)
			if err != nil {
				return Change{}, err
			}
			switch key {
			case "email":
				c.Email = &s
			case "username":
				c.Username = &s
			default:
				c.FullName = &s
			}
		case "system_role":
			s, err := stringValue(key, v)
			if err != nil {
				return Change{}, err
			}
			r := accounts.SystemRole(s)
			c.SystemRole = &r
		case "user_type":
			s, err := stringValue(key, v)
			if err != nil {
				return Change{}, err
			}
			t := accounts.UserType(s)
			c.UserType = &t
		case "status":
			s, err := stringValue(key, v)
			if err != nil {
				return Change{}, err
			}
			st := accounts.Status(s)
			c.Status = &st
		case "team_id", "enterprise_group_id":
			id, err := idValue(key, v)
			if err != nil {
				return Change{}, err
			}
			a := &Association{ID: id, Role: accounts.MembershipRoleMember}
			if key == "team_id" {
				c.Team = a
			} else {
				c.EnterpriseGroup = a
			}
		case "team_role", "enterprise_group_role":
			s, err := stringValue(key, v)
			if err != nil {
				return Change{}, err
			}
			r := accounts.MembershipRole(s)
			if key == "team_role" {
				c.TeamRole = &r
			} else {
				c.EnterpriseGroupRole = &r
			}
		default:
			return Change{}, invalid(key, "Unknown attribute: %s", key)
		}
	}

	// a role sent alongside an association is the role to join with
	if c.Team != nil && c.TeamRole != nil {
		c.Team.Role = *c.TeamRole
		c.TeamRole = nil
	}
	if c.EnterpriseGroup != nil && c.EnterpriseGroupRole != nil {
		c.EnterpriseGroup.Role = *c.EnterpriseGroupRole
		c.EnterpriseGroupRole = nil
	}
	return c, nil
}

func stringValue(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", invalid(key, "%s must be a string", humanize(key))
	}
	return s, nil
}

func idValue(key string, v any) (*int64, error) {
	var id int64
	switch n := v.(type) {
	case nil:
		return nil, nil
	case int:
		id = int64(n)
	case int64:
		id = n
	case float64:
		if n != float64(int64(n)) {
			return nil, invalid(key, "%s must be an integer", humanize(key))
		}
		id = int64(n)
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return nil, invalid(key, "%s must be an integer", humanize(key))
		}
		id = parsed
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil, invalid(key, "%s must be an integer", humanize(key))
		}
		id = parsed
	default:
		return nil, invalid(key, "%s must be an integer, got %s", humanize(key), fmt.Sprintf("%T", v))
	}
	if id <= 0 {
		return nil, invalid(key, "%s must be positive", humanize(key))
	}
	return &id, nil
}
