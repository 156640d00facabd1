package auth

import (
	"net/http"
	"strings"
)

// Dev-only user injection via headers when AUTH_DEV_BYPASS=true
func devUserFromHeaders(r *http.Request) User {
	user := r.Header.Get("X-Dev-User")
	if user == "" {
		return User{}
	}
	role := r.Header.Get("X-Dev-Role")
	prov := r.Header.Get("X-Dev-Provider")

	var scopes []string
	for _, s := range strings.Split(r.Header.Get("X-Dev-Scopes"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return User{
		Username:             user,
		Tenant:               r.Header.Get("X-Dev-Tenant"),
		AuthenticationSource: AuthenticationSource{Provider: first(prov, "dev")},
		Role:                 Role{Name: role},
		Scopes:               scopes,
	}
}
