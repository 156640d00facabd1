package auth

type Role struct {
	Name string `json:"name"`
}

type AuthenticationSource struct {
	Provider string `json:"provider"`
}

type User struct {
	Username             string               `json:"username"`
	Email                string               `json:"email,omitempty"`
	Tenant               string               `json:"tenant,omitempty"`
	AuthenticationSource AuthenticationSource `json:"authenticationSource"`
	Role                 Role                 `json:"role"`
	// Scopes are the token's scopes with the application prefix removed.
	Scopes []string `json:"scopes,omitempty"`
}

type contextKey struct{ name string }

var (
	userCtxKey  = &contextKey{"user"}
	tokenCtxKey = &contextKey{"token"}
)
