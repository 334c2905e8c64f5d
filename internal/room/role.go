package room

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Role is the claimed role of a connection.
type Role int

const (
	RoleUnknown Role = iota
	RoleDriver
	RolePassenger
)

func (r Role) String() string {
	switch r {
	case RoleDriver:
		return "driver"
	case RolePassenger:
		return "passenger"
	default:
		return "unknown"
	}
}

// ParseRole maps a token role claim to a Role. Numeric claims follow the user
// service numbering (1 driver, 2 passenger); names are matched case-insensitively.
func ParseRole(claim any) Role {
	switch v := claim.(type) {
	case float64:
		return roleFromNumber(int64(v))
	case int:
		return roleFromNumber(int64(v))
	case int64:
		return roleFromNumber(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return RoleUnknown
		}
		return roleFromNumber(n)
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return roleFromNumber(n)
		}
		switch s {
		case "driver":
			return RoleDriver
		case "passenger", "user":
			return RolePassenger
		}
	}
	return RoleUnknown
}

func roleFromNumber(n int64) Role {
	switch n {
	case 1:
		return RoleDriver
	case 2:
		return RolePassenger
	default:
		return RoleUnknown
	}
}
