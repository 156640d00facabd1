// core/cred.go
package core

import (
	"context"
	"errors"
	"net/http"

	manifest "github.com/joeydtaylor/steeze-connect/pkg/manifest"
)

// ErrNoCredentials means the route wants an end-user token the request
// does not carry.
var ErrNoCredentials = errors.New("no downstream credentials")

// DownstreamCredentials is what a route propagates to the destination.
type DownstreamCredentials struct {
	// AuthToken is the end-user token: principal propagation for proxied
	// routes, token exchange input for direct routes.
	AuthToken string
	// Extra headers added to the backend request.
	Extra map[string]string
}

type CredentialsProvider interface {
	Issue(ctx context.Context, r *http.Request, route manifest.Route) (DownstreamCredentials, error)
}
