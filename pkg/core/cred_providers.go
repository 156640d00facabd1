// pkg/core/cred_providers.go
package core

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	manifest "github.com/joeydtaylor/steeze-connect/pkg/manifest"
	"github.com/joeydtaylor/steeze-connect/pkg/middleware/auth"
)

type NoAuthProvider struct{}

func (NoAuthProvider) Issue(context.Context, *http.Request, manifest.Route) (DownstreamCredentials, error) {
	return DownstreamCredentials{}, nil
}

// UserTokenProvider propagates the token the auth middleware validated.
type UserTokenProvider struct {
	Auth *auth.Middleware // <- pointer to avoid copying mutex
}

func (p UserTokenProvider) Issue(ctx context.Context, _ *http.Request, _ manifest.Route) (DownstreamCredentials, error) {
	if p.Auth == nil {
		return DownstreamCredentials{}, fmt.Errorf("%w: auth not configured", ErrNoCredentials)
	}
	tok := p.Auth.Token(ctx)
	if tok == "" {
		return DownstreamCredentials{}, fmt.Errorf("%w: request has no user token", ErrNoCredentials)
	}
	return DownstreamCredentials{AuthToken: tok}, nil
}

// StaticTokenProvider propagates a token read from the environment on
// every call, so rotated secrets are picked up.
type StaticTokenProvider struct {
	EnvVar string // default: DOWNSTREAM_TOKEN
}

func (p StaticTokenProvider) Issue(_ context.Context, _ *http.Request, route manifest.Route) (DownstreamCredentials, error) {
	env := p.EnvVar
	if env == "" && route.Policy.DownAuth != nil {
		env = route.Policy.DownAuth.Env
	}
	if env == "" {
		env = "DOWNSTREAM_TOKEN"
	}
	val := strings.TrimSpace(os.Getenv(env))
	if val == "" {
		return DownstreamCredentials{}, fmt.Errorf("static token: %s is empty", env)
	}
	return DownstreamCredentials{AuthToken: strings.TrimPrefix(val, "Bearer ")}, nil
}
