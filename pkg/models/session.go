package models

// SessionKey is the fixed key the session record is stored under.
const SessionKey = "user"

// User is the session record returned by the login and change-role endpoints
// and persisted between CLI invocations.
type User struct {
	ID       string `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
	RoleName string `json:"roleName" yaml:"role_name"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
}

// Credentials is the login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Envelope wraps the auth endpoint responses, which nest the user under "data".
type Envelope[T any] struct {
	Data T `json:"data"`
}
