package connectivity

import (
	"fmt"
	"net/http"
	"strings"
)

// Header names used along the call chain.
const (
	HeaderProxyAuthorization = "Proxy-Authorization"
	HeaderConnectivityAuth   = "SAP-Connectivity-Authentication"
	HeaderAuthorization      = "Authorization"
	HeaderCSRFToken          = "X-Csrf-Token"
	HeaderCookie             = "Cookie"
	HeaderUserToken          = "X-User-Token"
)

// Destination is a destination service lookup result.
type Destination struct {
	Owner         *Owner        `json:"owner,omitempty"`
	Configuration Configuration `json:"destinationConfiguration"`
	AuthTokens    []AuthToken   `json:"authTokens,omitempty"`
}

// Owner identifies where the destination is defined (subaccount or instance).
type Owner struct {
	SubaccountID string `json:"SubaccountId"`
	InstanceID   string `json:"InstanceId"`
}

// Configuration is the destinationConfiguration block. Only the fields the
// call chain reads are typed; everything else lands in Properties.
type Configuration struct {
	Name           string `json:"Name"`
	Type           string `json:"Type"`
	URL            string `json:"URL"`
	Authentication string `json:"Authentication"`
	ProxyType      string `json:"ProxyType"`

	Properties map[string]any `json:"-"`
}

// AuthToken is a token the destination service pre-provisioned for the target.
type AuthToken struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Error string `json:"error,omitempty"`
}

// HeaderValue renders the token as an Authorization header value.
func (t AuthToken) HeaderValue() string {
	return t.Type + " " + t.Value
}

// String implements fmt.Stringer, redacting the token value.
func (t AuthToken) String() string {
	return fmt.Sprintf("AuthToken{Type: %s, Value: %s}", t.Type, redact(t.Value))
}

// authHeader returns the first pre-provisioned token, if any.
func (d *Destination) authHeader() (string, bool) {
	if d == nil || len(d.AuthTokens) == 0 {
		return "", false
	}
	return d.AuthTokens[0].HeaderValue(), true
}

// Request is what a caller wants sent to the destination.
type Request struct {
	Method string
	// URL is appended verbatim to the destination URL.
	URL    string
	Header map[string]string
	// Body is sent as-is when it is []byte, string or io.Reader; with JSON
	// set any other value is JSON-encoded.
	Body any
	JSON bool
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// needsCSRF reports whether the method is state-changing and needs a token.
func (r Request) needsCSRF() bool {
	switch r.method() {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// CSRFHeaders is the result of the x-csrf-token handshake.
type CSRFHeaders struct {
	Token  string
	Cookie string
}

func (c *CSRFHeaders) apply(h http.Header) {
	if c == nil {
		return
	}
	if c.Token != "" {
		h.Set(HeaderCSRFToken, c.Token)
	}
	if c.Cookie != "" {
		h.Set(HeaderCookie, c.Cookie)
	}
}

// Response is the backend's reply, unmodified apart from body buffering.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	// Data holds the decoded JSON body when the request had JSON set and
	// NoEncoding was not requested. Nil when the body is not JSON.
	Data any
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

func redact(s string) string {
	if s == "" {
		return "<empty>"
	}
	return "[REDACTED]"
}

// isSecretProperty matches Password, clientSecret, KeyStorePassword and the like.
func isSecretProperty(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "password") || strings.Contains(n, "secret") || strings.HasSuffix(n, "token")
}

// Redacted returns a copy safe to log or return to clients: token values and
// properties whose name looks like a credential are masked.
func (d *Destination) Redacted() *Destination {
	if d == nil {
		return nil
	}
	out := *d
	out.AuthTokens = make([]AuthToken, len(d.AuthTokens))
	for i, t := range d.AuthTokens {
		t.Value = redact(t.Value)
		out.AuthTokens[i] = t
	}
	out.Configuration.Properties = make(map[string]any, len(d.Configuration.Properties))
	for k, v := range d.Configuration.Properties {
		if isSecretProperty(k) {
			v = redact(fmt.Sprint(v))
		}
		out.Configuration.Properties[k] = v
	}
	return &out
}
