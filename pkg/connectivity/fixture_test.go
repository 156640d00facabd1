package connectivity

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeydtaylor/steeze-connect/pkg/xsenv"
)

const (
	destClientID = "sb-dest!b12|destination-xsappname!b9"
	connClientID = "sb-conn!b7|connectivity!b17"
)

// seen is one request observed by a fake platform service.
type seen struct {
	Method string
	URL    string
	Header http.Header
	Body   string
}

// platform fakes the identity service, the destination service and the
// connectivity proxy.
type platform struct {
	identity    *httptest.Server
	destination *httptest.Server
	proxy       *httptest.Server

	tokenStatus int
	tokenBody   string
	destStatus  int
	destBody    string
	// csrfCookies are returned as Set-Cookie on OPTIONS; none means no header.
	csrfCookies []string
	// backendStatus, when set, is the proxy's answer to every non-OPTIONS request.
	backendStatus int

	tokenCalls atomic.Int32
	destCalls  atomic.Int32

	mu      sync.Mutex
	lookups []seen
	proxied []seen
}

func newPlatform(t *testing.T) *platform {
	t.Helper()
	p := &platform{
		destBody:    `{"destinationConfiguration":{"Name":"D1","URL":"http://backend.local"},"authTokens":[]}`,
		csrfCookies: []string{"SAP_SESSIONID=abc; path=/", "sap-usercontext=sap-client=100; path=/"},
	}

	p.identity = httptest.NewServer(http.HandlerFunc(p.serveToken))
	p.destination = httptest.NewServer(http.HandlerFunc(p.serveDestination))
	p.proxy = httptest.NewServer(http.HandlerFunc(p.serveProxy))
	t.Cleanup(func() {
		p.identity.Close()
		p.destination.Close()
		p.proxy.Close()
	})
	return p
}

func (p *platform) serveToken(w http.ResponseWriter, r *http.Request) {
	p.tokenCalls.Add(1)
	if p.tokenStatus != 0 {
		w.WriteHeader(p.tokenStatus)
		_, _ = io.WriteString(w, p.tokenBody)
		return
	}
	if p.tokenBody != "" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, p.tokenBody)
		return
	}

	id, secret, ok := r.BasicAuth()
	if !ok || r.URL.Path != "/oauth/token" || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil ||
		r.PostForm.Get("grant_type") != "client_credentials" ||
		r.PostForm.Get("client_id") != id {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var token string
	switch {
	case id == destClientID && secret == "dest-secret":
		token = "dest-token"
	case id == connClientID && secret == "conn-secret":
		token = "conn-token"
	default:
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"access_token":%q,"token_type":"bearer","expires_in":43199}`, token)
}

func (p *platform) serveDestination(w http.ResponseWriter, r *http.Request) {
	p.destCalls.Add(1)
	p.mu.Lock()
	p.lookups = append(p.lookups, seen{Method: r.Method, URL: r.URL.String(), Header: r.Header.Clone()})
	p.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer dest-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if p.destStatus != 0 {
		w.WriteHeader(p.destStatus)
		_, _ = io.WriteString(w, p.destBody)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, p.destBody)
}

// serveProxy acts as a plain forward proxy that answers itself.
func (p *platform) serveProxy(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	p.mu.Lock()
	p.proxied = append(p.proxied, seen{Method: r.Method, URL: r.URL.String(), Header: r.Header.Clone(), Body: string(body)})
	p.mu.Unlock()

	if r.Method == http.MethodOptions {
		w.Header().Set("X-Csrf-Token", "csrf-123")
		for _, c := range p.csrfCookies {
			w.Header().Add("Set-Cookie", c)
		}
		w.WriteHeader(http.StatusOK)
		return
	}
	if p.backendStatus != 0 {
		http.Error(w, "backend down", p.backendStatus)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"path":%q,"method":%q}`, r.URL.Path, r.Method)
}

func (p *platform) vcap() string {
	u, _ := url.Parse(p.proxy.URL)
	return fmt.Sprintf(`{
  "xsuaa": [{"name": "app-uaa", "label": "xsuaa", "tags": ["xsuaa"],
    "credentials": {"url": %q, "clientid": "sb-app", "clientsecret": "app-secret"}}],
  "destination": [{"name": "app-dest", "label": "destination", "tags": ["destination"],
    "credentials": {"uri": %q, "clientid": %q, "clientsecret": "dest-secret"}}],
  "connectivity": [{"name": "app-conn", "label": "connectivity", "tags": ["connectivity"],
    "credentials": {"clientid": %q, "clientsecret": "conn-secret",
      "onpremise_proxy_host": %q, "onpremise_proxy_port": %s}}]
}`, p.identity.URL, p.destination.URL, destClientID, connClientID, u.Hostname(), u.Port())
}

func (p *platform) client(opts ...Option) *Client {
	base := []Option{
		WithServices(func() (*xsenv.Services, error) { return xsenv.Parse([]byte(p.vcap())) }),
		WithEnv(noEnv),
	}
	return New(append(base, opts...)...)
}

func (p *platform) proxiedRequests() []seen {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]seen(nil), p.proxied...)
}

func (p *platform) lookupRequests() []seen {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]seen(nil), p.lookups...)
}

func noEnv(string) (string, bool) { return "", false }

func envWith(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func requireOnlyFinal(t *testing.T, reqs []seen) seen {
	t.Helper()
	require.Len(t, reqs, 1, "methods seen: %s", methods(reqs))
	return reqs[0]
}

func methods(reqs []seen) string {
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.Method)
	}
	return strings.Join(out, ",")
}
