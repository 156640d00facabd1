package auth

import (
	"net/http"
	"strings"
)

func (m *Middleware) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Dev bypass for local testing (NEVER enable in prod)
			if m.devBypass {
				if u := devUserFromHeaders(r); u.Username != "" {
					next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u, "")))
					return
				}
			}

			// 1) Bearer token: present but invalid is a hard 401
			if raw, ok := bearerToken(r); ok {
				u, err := m.validateToken(raw)
				if err != nil {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u, raw)))
				return
			}

			// 2) Token cookie, validated the same way
			if m.cookieName != "" {
				if c, _ := r.Cookie(m.cookieName); c != nil && c.Value != "" {
					if u, err := m.validateToken(c.Value); err == nil {
						next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u, c.Value)))
						return
					}
					// fall through on error; guards decide
				}
			}

			// 3) No credentials; continue unauthenticated
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	t := strings.TrimSpace(h[7:])
	return t, t != ""
}
