package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// xsuaaClaims are the claims of an XSUAA-issued user token.
type xsuaaClaims struct {
	jwt.RegisteredClaims
	UserName  string   `json:"user_name"`
	Email     string   `json:"email"`
	Origin    string   `json:"origin"`
	ZoneID    string   `json:"zid"`
	ClientID  string   `json:"client_id"`
	GrantType string   `json:"grant_type"`
	Scope     []string `json:"scope"`
}

func (m *Middleware) validateToken(raw string) (User, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.leeway),
	)

	var claims xsuaaClaims
	tok, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return m.keyFor(kid)
	})
	if err != nil || !tok.Valid {
		return User{}, fmt.Errorf("invalid token: %w", err)
	}

	if m.issuer != "" && claims.Issuer != m.issuer {
		return User{}, errors.New("bad issuer")
	}

	if m.audience != "" {
		found := false
		for _, a := range claims.Audience {
			if a == m.audience {
				found = true
				break
			}
		}
		if !found {
			return User{}, errors.New("bad audience")
		}
	}

	username := first(claims.UserName, claims.Subject)
	if username == "" {
		return User{}, errors.New("missing user_name")
	}

	scopes := m.localScopes(claims.Scope)
	return User{
		Username:             username,
		Email:                claims.Email,
		Tenant:               claims.ZoneID,
		AuthenticationSource: AuthenticationSource{Provider: first(claims.Origin, "xsuaa")},
		Role:                 Role{Name: first(scopes...)},
		Scopes:               scopes,
	}, nil
}

// localScopes strips the "<xsappname>." prefix and drops other apps' scopes.
// Without an app name every scope is kept as is.
func (m *Middleware) localScopes(scopes []string) []string {
	if m.appName == "" {
		return scopes
	}
	prefix := m.appName + "."
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if strings.HasPrefix(s, prefix) {
			out = append(out, strings.TrimPrefix(s, prefix))
		}
	}
	return out
}
