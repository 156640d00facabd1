// Package xsenv reads service bindings from the Cloud Foundry VCAP_SERVICES
// environment variable.
package xsenv

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// EnvVar is the environment variable holding the bound-services document.
const EnvVar = "VCAP_SERVICES"

// Well-known service tags.
const (
	TagXSUAA        = "xsuaa"
	TagDestination  = "destination"
	TagConnectivity = "connectivity"
)

var (
	ErrNoServices      = errors.New("xsenv: " + EnvVar + " not set")
	ErrServiceNotFound = errors.New("xsenv: service not found")
)

// Credentials is the subset of a binding's credentials block used to reach
// the identity, destination and connectivity services.
type Credentials struct {
	Name  string // instance name
	Label string // service offering label

	URL          string
	URI          string
	ClientID     string
	ClientSecret string

	OnPremiseProxyHost string
	OnPremiseProxyPort string

	// xsuaa only
	XSAppName       string
	UAADomain       string
	VerificationKey string // PEM
}

// Endpoint returns URL, falling back to URI (destination bindings only carry uri).
func (c Credentials) Endpoint() string {
	if c.URL != "" {
		return c.URL
	}
	return c.URI
}

// Services is a parsed VCAP_SERVICES document.
type Services struct {
	root gjson.Result
}

// FromEnv parses VCAP_SERVICES as it is right now. Callers that need fresh
// bindings call it again; nothing is cached.
func FromEnv() (*Services, error) {
	raw, ok := os.LookupEnv(EnvVar)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, ErrNoServices
	}
	return Parse([]byte(raw))
}

// Parse parses an explicit VCAP_SERVICES document.
func Parse(raw []byte) (*Services, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("xsenv: %s is not valid JSON", EnvVar)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("xsenv: %s must be a JSON object keyed by service label", EnvVar)
	}
	return &Services{root: root}, nil
}

// ByTag returns the first bound instance carrying tag.
func (s *Services) ByTag(tag string) (Credentials, error) {
	inst, ok := s.find(func(inst gjson.Result) bool {
		for _, t := range inst.Get("tags").Array() {
			if t.String() == tag {
				return true
			}
		}
		return false
	})
	if !ok {
		return Credentials{}, fmt.Errorf("%w: no instance tagged %q", ErrServiceNotFound, tag)
	}
	return credentialsOf(inst), nil
}

// ByName returns the bound instance with the given instance name.
func (s *Services) ByName(name string) (Credentials, error) {
	inst, ok := s.find(func(inst gjson.Result) bool {
		return inst.Get("name").String() == name
	})
	if !ok {
		return Credentials{}, fmt.Errorf("%w: no instance named %q", ErrServiceNotFound, name)
	}
	return credentialsOf(inst), nil
}

func (s *Services) find(match func(gjson.Result) bool) (gjson.Result, bool) {
	var found gjson.Result
	ok := false
	s.root.ForEach(func(_, instances gjson.Result) bool {
		instances.ForEach(func(_, inst gjson.Result) bool {
			if match(inst) {
				found, ok = inst, true
				return false
			}
			return true
		})
		return !ok
	})
	return found, ok
}

func credentialsOf(inst gjson.Result) Credentials {
	c := inst.Get("credentials")
	return Credentials{
		Name:               inst.Get("name").String(),
		Label:              inst.Get("label").String(),
		URL:                c.Get("url").String(),
		URI:                c.Get("uri").String(),
		ClientID:           c.Get("clientid").String(),
		ClientSecret:       c.Get("clientsecret").String(),
		OnPremiseProxyHost: c.Get("onpremise_proxy_host").String(),
		// gjson renders numbers by their raw text, so "20003" and 20003 agree.
		OnPremiseProxyPort: c.Get("onpremise_proxy_port").String(),
		XSAppName:          c.Get("xsappname").String(),
		UAADomain:          c.Get("uaadomain").String(),
		VerificationKey:    c.Get("verificationkey").String(),
	}
}
