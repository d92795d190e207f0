package auth

import "errors"

// Role is the authorisation tier carried in a local API token.
type Role string

const (
	// RoleViewer can read structures, devices, pairing lists and the log.
	RoleViewer Role = "viewer"

	// RoleOperator can additionally send device commands.
	RoleOperator Role = "operator"

	// RoleAdmin can additionally manage the remote account (login, logout)
	// and issue raw remote requests.
	RoleAdmin Role = "admin"
)

// ValidRoles lists every role in ascending privilege.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true for a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Principal identifies the caller of an authenticated request.
type Principal struct {
	Subject   string `json:"subject"`
	Role      Role   `json:"role"`
	SessionID string `json:"session_id"`
}

// Sentinel errors for authentication.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAPIKeyNotSet       = errors.New("auth: api key not configured")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrForbidden          = errors.New("auth: insufficient permissions")
)
