package core

import (
	"net/http"

	manifest "github.com/joeydtaylor/steeze-connect/pkg/manifest"
)

// issueCreds uses the injected provider when there is one, else picks one
// by the route's downstream_auth type.
func issueCreds(d BuildDeps, r *http.Request, rt manifest.Route) (DownstreamCredentials, error) {
	if d.Creds != nil {
		return d.Creds.Issue(r.Context(), r, rt)
	}
	if rt.Policy.DownAuth == nil {
		return DownstreamCredentials{}, nil
	}
	switch rt.Policy.DownAuth.Type {
	case manifest.AuthUserToken:
		return UserTokenProvider{Auth: d.Auth}.Issue(r.Context(), r, rt)
	case manifest.AuthStaticToken:
		return StaticTokenProvider{}.Issue(r.Context(), r, rt)
	}
	return NoAuthProvider{}.Issue(r.Context(), r, rt)
}
