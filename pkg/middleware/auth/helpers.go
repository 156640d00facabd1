package auth

import "context"

func (m *Middleware) GetUser(ctx context.Context) User {
	if user, ok := ctx.Value(userCtxKey).(User); ok {
		return user
	}
	return User{}
}

// Token returns the raw bearer token the request was authenticated with.
// Empty for dev-bypass users.
func (m *Middleware) Token(ctx context.Context) string {
	t, _ := ctx.Value(tokenCtxKey).(string)
	return t
}

func (m *Middleware) IsRole(ctx context.Context, role Role) bool {
	if u, ok := ctx.Value(userCtxKey).(User); ok {
		return u.Role.Name == role.Name || m.HasScope(ctx, role.Name) || m.IsAdmin(ctx)
	}
	return false
}

// HasScope reports whether the user holds scope (without the app prefix).
func (m *Middleware) HasScope(ctx context.Context, scope string) bool {
	u, ok := ctx.Value(userCtxKey).(User)
	if !ok {
		return false
	}
	for _, s := range u.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func (m *Middleware) IsAdmin(ctx context.Context) bool {
	if m.adminRole == "" {
		return false
	}
	if u, ok := ctx.Value(userCtxKey).(User); ok {
		return u.Role.Name == m.adminRole || m.HasScope(ctx, m.adminRole)
	}
	return false
}

func (m *Middleware) IsUser(ctx context.Context, username string) bool {
	if u, ok := ctx.Value(userCtxKey).(User); ok {
		return u.Username == username || m.IsAdmin(ctx)
	}
	return false
}

func (m *Middleware) IsAuthenticated(ctx context.Context) bool {
	u, ok := ctx.Value(userCtxKey).(User)
	return ok && u.Username != ""
}

// WithUser returns ctx carrying u and its raw token.
func WithUser(ctx context.Context, u User, token string) context.Context {
	ctx = context.WithValue(ctx, userCtxKey, u)
	if token != "" {
		ctx = context.WithValue(ctx, tokenCtxKey, token)
	}
	return ctx
}
