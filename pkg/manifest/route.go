package manifest

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Route describes a single HTTP route.
type Route struct {
	Path    string   `toml:"path"`
	Method  string   `toml:"method"`
	Guard   Guard    `toml:"guard"`
	Policy  Policy   `toml:"policy"`
	Handler HSpec    `toml:"handler"`
	Tags    []string `toml:"tags"`
}

type Guard struct {
	Roles       []string `toml:"roles"`
	Users       []string `toml:"users"`
	RequireAuth bool     `toml:"require_auth"`
}

type DownstreamAuth struct {
	Type DownstreamAuthType `toml:"type"`
	// Env names the variable holding the token for static-token (default DOWNSTREAM_TOKEN).
	Env string `toml:"env"`
}

type Policy struct {
	TimeoutMS   int             `toml:"timeout_ms"`
	ForwardHdrs []string        `toml:"forward_headers"`
	DownAuth    *DownstreamAuth `toml:"downstream_auth"`
}

type HSpec struct {
	Type        HandlerType      `toml:"type"`
	Name        string           `toml:"name"`
	Destination *DestinationSpec `toml:"destination"`
}

// DestinationSpec binds a route to a named destination.
type DestinationSpec struct {
	Name string `toml:"name"`
	// Path is prefixed to the wildcard remainder of the inbound path.
	Path            string `toml:"path"`
	IdentityService string `toml:"identity_service"`
	NoEncoding      bool   `toml:"no_encoding"`
	JSON            bool   `toml:"json"`
}

// normalize path/method
func (r *Route) normalize() error {
	if r.Path == "" {
		return errors.New("path is required")
	}
	if !strings.HasPrefix(r.Path, "/") {
		r.Path = "/" + r.Path
	}
	if r.Path != "/" {
		r.Path = path.Clean(r.Path)
	}
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if r.Method == "" {
		r.Method = "GET"
	}
	if da := r.Policy.DownAuth; da != nil {
		da.Type = DownstreamAuthType(strings.ToLower(strings.TrimSpace(string(da.Type))))
		if da.Type == AuthStaticToken && strings.TrimSpace(da.Env) == "" {
			da.Env = "DOWNSTREAM_TOKEN"
		}
	}
	return nil
}

// validate fields that are independent of global state.
func (r *Route) validate() error {
	switch r.Handler.Type {
	case HandlerInproc:
		if strings.TrimSpace(r.Handler.Name) == "" {
			return errors.New("handler.name required for inproc")
		}
	case HandlerDestinationProxy, HandlerDestinationDirect, HandlerDestinationConfig:
		if r.Handler.Destination == nil || strings.TrimSpace(r.Handler.Destination.Name) == "" {
			return fmt.Errorf("handler.destination.name required for %s", r.Handler.Type)
		}
	default:
		return fmt.Errorf("unknown handler type %q", r.Handler.Type)
	}

	if da := r.Policy.DownAuth; da != nil {
		switch da.Type {
		case AuthNone, AuthStaticToken:
		case AuthUserToken:
			if !r.Guard.RequireAuth {
				return errors.New("policy.downstream_auth.type user-token needs guard.require_auth")
			}
		default:
			return fmt.Errorf("policy.downstream_auth.type %q invalid", da.Type)
		}
	}

	if r.Policy.TimeoutMS < 0 {
		return errors.New("policy.timeout_ms must be >= 0")
	}
	return nil
}
