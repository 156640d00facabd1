package connectivity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/joeydtaylor/steeze-connect/pkg/xsenv"
)

func TestBuildRequest_RoundTripD1(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)
	p.destBody = `{"destinationConfiguration":{"Name":"D1","URL":"https://backend"},"authTokens":[]}`

	ro, err := p.client().BuildRequest(context.Background(), Request{Method: "GET", URL: "/items", Header: map[string]string{}}, "user-jwt", "D1")
	require.NoError(t, err)

	assert.Equal(t, "https://backend/items", ro.URL)
	assert.Equal(t, http.MethodGet, ro.Method)
	assert.Equal(t, "Bearer conn-token", ro.Header.Get(HeaderProxyAuthorization))
	assert.Equal(t, "Bearer user-jwt", ro.Header.Get(HeaderConnectivityAuth))
	assert.Empty(t, ro.Header.Get(HeaderCSRFToken))
	assert.Empty(t, ro.Header.Get(HeaderCookie))
	assert.Empty(t, ro.Header.Get(HeaderAuthorization))
	require.NotNil(t, ro.Proxy)
	assert.Equal(t, p.proxy.URL, ro.Proxy.String())

	// no handshake, no dispatch
	assert.Empty(t, p.proxiedRequests())
	assert.EqualValues(t, 2, p.tokenCalls.Load())
	assert.EqualValues(t, 1, p.destCalls.Load())
}

func TestDo_SendsThroughProxy(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)

	resp, err := p.client().Do(context.Background(), Request{
		URL:    "/sap/opu/odata/sap/API_BP/A_BusinessPartner?$top=1",
		Header: map[string]string{"sap-client": "100"},
		JSON:   true,
	}, "user-jwt", "D1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "decoded body: %T", resp.Data)
	assert.Equal(t, "/sap/opu/odata/sap/API_BP/A_BusinessPartner", data["path"])

	got := requireOnlyFinal(t, p.proxiedRequests())
	assert.Equal(t, "http://backend.local/sap/opu/odata/sap/API_BP/A_BusinessPartner?$top=1", got.URL)
	assert.Equal(t, "Bearer conn-token", got.Header.Get(HeaderProxyAuthorization))
	assert.Equal(t, "Bearer user-jwt", got.Header.Get(HeaderConnectivityAuth))
	assert.Equal(t, "100", got.Header.Get("sap-client"))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))

	lookup := p.lookupRequests()
	require.Len(t, lookup, 1)
	assert.Equal(t, "/destination-configuration/v1/destinations/D1", lookup[0].URL)
	assert.Empty(t, lookup[0].Header.Get(HeaderUserToken))
}

func TestDo_CSRFOnlyForStateChangingMethods(t *testing.T) {
	t.Parallel()

	cases := []struct {
		method string
		csrf   bool
	}{
		{"POST", true},
		{"put", true},
		{"DELETE", true},
		{"GET", false},
		{"HEAD", false},
		{"OPTIONS", false},
		{"PATCH", false},
	}
	for _, tc := range cases {
		t.Run(tc.method, func(t *testing.T) {
			t.Parallel()
			p := newPlatform(t)

			_, err := p.client().Do(context.Background(), Request{Method: tc.method, URL: "/orders"}, "user-jwt", "D1")
			require.NoError(t, err)

			reqs := p.proxiedRequests()
			if !tc.csrf {
				final := requireOnlyFinal(t, reqs)
				assert.Equal(t, strings.ToUpper(tc.method), final.Method)
				assert.Empty(t, final.Header.Get(HeaderCSRFToken))
				assert.Empty(t, final.Header.Get(HeaderCookie))
				return
			}

			require.Len(t, reqs, 2, "methods seen: %s", methods(reqs))
			preflight, final := reqs[0], reqs[1]
			assert.Equal(t, http.MethodOptions, preflight.Method)
			assert.Equal(t, "Fetch", preflight.Header.Get(HeaderCSRFToken))
			assert.Equal(t, "Bearer conn-token", preflight.Header.Get(HeaderProxyAuthorization))
			assert.Equal(t, "http://backend.local/orders", preflight.URL)

			assert.Equal(t, strings.ToUpper(tc.method), final.Method)
			assert.Equal(t, "csrf-123", final.Header.Get(HeaderCSRFToken))
			assert.Equal(t, "SAP_SESSIONID=abc; path=/;sap-usercontext=sap-client=100; path=/", final.Header.Get(HeaderCookie))
		})
	}
}

func TestDo_CSRFWithoutCookie(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)
	p.csrfCookies = nil

	_, err := p.client().Do(context.Background(), Request{Method: "POST", URL: "/orders", Body: `{"id":1}`}, "user-jwt", "D1")
	require.NoError(t, err)

	reqs := p.proxiedRequests()
	require.Len(t, reqs, 2)
	final := reqs[1]
	assert.Equal(t, "csrf-123", final.Header.Get(HeaderCSRFToken))
	_, hasCookie := final.Header[HeaderCookie]
	assert.False(t, hasCookie)
	assert.Equal(t, `{"id":1}`, final.Body)
}

func TestDo_CSRFHeadersOverrideCaller(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)

	_, err := p.client().Do(context.Background(), Request{
		Method: "POST",
		URL:    "/orders",
		Header: map[string]string{"x-csrf-token": "stale", "Proxy-Authorization": "Bearer caller"},
	}, "user-jwt", "D1")
	require.NoError(t, err)

	reqs := p.proxiedRequests()
	require.Len(t, reqs, 2)
	final := reqs[1]
	assert.Equal(t, "csrf-123", final.Header.Get(HeaderCSRFToken))
	// caller headers override the base headers
	assert.Equal(t, "Bearer caller", final.Header.Get(HeaderProxyAuthorization))
}

func TestDo_DestinationAuthTokens(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)
	p.destBody = `{
  "destinationConfiguration": {"Name": "D2", "URL": "http://backend.local", "Authentication": "BasicAuthentication"},
  "authTokens": [{"type": "Basic", "value": "dXNlcjpwYXNz"}, {"type": "Bearer", "value": "ignored"}]
}`

	_, err := p.client().Do(context.Background(), Request{
		URL:    "/items",
		Header: map[string]string{HeaderConnectivityAuth: "Bearer from-caller"},
	}, "user-jwt", "D2")
	require.NoError(t, err)

	final := requireOnlyFinal(t, p.proxiedRequests())
	assert.Equal(t, "Basic dXNlcjpwYXNz", final.Header.Get(HeaderAuthorization))
	_, has := final.Header[HeaderConnectivityAuth]
	assert.False(t, has)
}

func TestDo_HTTPProxyOverride(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)

	var (
		mu      sync.Mutex
		headers []http.Header
	)
	bas := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(bas.Close)

	c := p.client(WithEnv(envWith(map[string]string{EnvHTTPProxy: bas.URL})))

	ro, err := c.BuildRequest(context.Background(), Request{URL: "/items"}, "user-jwt", "D1")
	require.NoError(t, err)
	assert.Equal(t, bas.URL, ro.Proxy.String())
	assert.Empty(t, ro.Header.Get(HeaderConnectivityAuth))

	resp, err := c.Do(context.Background(), Request{
		URL:    "/items",
		Header: map[string]string{HeaderConnectivityAuth: "Bearer from-caller"},
	}, "user-jwt", "D1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Empty(t, p.proxiedRequests(), "connectivity proxy must not be used")
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, headers, 1)
	assert.Equal(t, "Bearer conn-token", headers[0].Get(HeaderProxyAuthorization))
	_, has := headers[0][HeaderConnectivityAuth]
	assert.False(t, has)
}

func TestDo_EmptyHTTPProxyIsIgnored(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)

	c := p.client(WithEnv(envWith(map[string]string{EnvHTTPProxy: ""})))
	ro, err := c.BuildRequest(context.Background(), Request{URL: "/items"}, "user-jwt", "D1")
	require.NoError(t, err)
	assert.Equal(t, p.proxy.URL, ro.Proxy.String())
	assert.Equal(t, "Bearer user-jwt", ro.Header.Get(HeaderConnectivityAuth))
}

func TestBuildRequest_URLConcatenation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, base, path, want string
	}{
		{"plain", "http://h", "/a", "http://h/a"},
		{"double slash kept", "http://h/", "/a", "http://h//a"},
		{"no separator", "http://h/base", "a", "http://h/basea"},
		{"empty path", "http://h/base", "", "http://h/base"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := newPlatform(t)
			p.destBody = `{"destinationConfiguration":{"URL":"` + tc.base + `"}}`

			ro, err := p.client().BuildRequest(context.Background(), Request{URL: tc.path}, "tok", "D1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, ro.URL)
		})
	}
}

func TestDo_TokenFailureStopsChain(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid_client"}`},
		{"html body", 0, `<html>maintenance</html>`},
		{"no access token", 0, `{"token_type":"bearer"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := newPlatform(t)
			p.tokenStatus = tc.status
			p.tokenBody = tc.body

			_, err := p.client().Do(context.Background(), Request{Method: "POST", URL: "/x"}, "user-jwt", "D1")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTokenAcquisition)
			assert.NotErrorIs(t, err, ErrDestinationLookup)

			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, string(StepDestinationToken), ce.Op)

			assert.EqualValues(t, 1, p.tokenCalls.Load())
			assert.Zero(t, p.destCalls.Load())
			assert.Empty(t, p.proxiedRequests())
		})
	}
}

func TestDo_TokenErrorExposesCause(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)
	p.tokenStatus = http.StatusUnauthorized
	p.tokenBody = `{"error":"unauthorized"}`

	_, err := p.client().Destination(context.Background(), "D1")
	var re *oauth2.RetrieveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnauthorized, re.Response.StatusCode)
	assert.Contains(t, err.Error(), "destination token")
}

func TestDo_DestinationLookupFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"not found", http.StatusNotFound, `{"ErrorMessage":"Configuration with the specified name was not found"}`,
			func(t *testing.T, err error) {
				assert.True(t, IsStatus(err, http.StatusNotFound))
				assert.Contains(t, err.Error(), "not found")
			}},
		{"garbage", 0, `<html/>`, func(t *testing.T, err error) {
			assert.False(t, IsStatus(err, 0))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := newPlatform(t)
			p.destStatus = tc.status
			p.destBody = tc.body

			_, err := p.client().Do(context.Background(), Request{URL: "/x"}, "user-jwt", "D1")
			require.ErrorIs(t, err, ErrDestinationLookup)
			tc.check(t, err)
			// connectivity token never requested
			assert.EqualValues(t, 1, p.tokenCalls.Load())
			assert.Empty(t, p.proxiedRequests())
		})
	}
}

func TestDo_MissingBindings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		vcap string
	}{
		{"no xsuaa", `{"destination":[{"name":"d","tags":["destination"],"credentials":{"uri":"http://d"}}]}`},
		{"no destination", `{"xsuaa":[{"name":"u","tags":["xsuaa"],"credentials":{"url":"http://u"}}]}`},
		{"no connectivity", `{"xsuaa":[{"name":"u","tags":["xsuaa"],"credentials":{"url":"http://u"}}],
			"destination":[{"name":"d","tags":["destination"],"credentials":{"uri":"http://d"}}]}`},
		{"not json", `not json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := New(
				WithServices(func() (*xsenv.Services, error) { return xsenv.Parse([]byte(tc.vcap)) }),
				WithEnv(noEnv),
			)
			_, err := c.Do(context.Background(), Request{URL: "/x"}, "tok", "D1")
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestDo_UnsetVCAPServices(t *testing.T) {
	t.Setenv(xsenv.EnvVar, "")

	_, err := New(WithEnv(noEnv)).Do(context.Background(), Request{URL: "/x"}, "tok", "D1")
	require.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, xsenv.ErrNoServices)
}

func TestDo_IdentityServiceByName(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)

	_, err := p.client().Destination(context.Background(), "D1", WithIdentityService("app-uaa"))
	require.NoError(t, err)

	_, err = p.client().Destination(context.Background(), "D1", WithIdentityService("other-uaa"))
	require.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, xsenv.ErrServiceNotFound)
}

func TestDo_EndUserTokenForwardedToLookup(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)

	_, err := p.client().Do(context.Background(), Request{URL: "/x"}, "user-jwt", "D1", WithEndUserToken("exchange-me"))
	require.NoError(t, err)

	lookup := p.lookupRequests()
	require.Len(t, lookup, 1)
	assert.Equal(t, "exchange-me", lookup[0].Header.Get(HeaderUserToken))
}

func TestDo_NoEncoding(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)

	resp, err := p.client().Do(context.Background(), Request{URL: "/file.pdf", JSON: true}, "user-jwt", "D1", WithNoEncoding())
	require.NoError(t, err)
	assert.Nil(t, resp.Data)
	assert.Equal(t, `{"path":"/file.pdf","method":"GET"}`, resp.Text())
}

func TestDo_BackendErrorIsAResponse(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)
	p.backendStatus = http.StatusServiceUnavailable

	resp, err := p.client().Do(context.Background(), Request{URL: "/x"}, "user-jwt", "D1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "backend down\n", resp.Text())
}

func TestDo_ProxyUnreachable(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)
	p.proxy.Close()

	_, err := p.client().Do(context.Background(), Request{URL: "/x"}, "user-jwt", "D1")
	require.ErrorIs(t, err, ErrProxyRequest)

	_, err = p.client().Do(context.Background(), Request{Method: "DELETE", URL: "/x"}, "user-jwt", "D1")
	require.ErrorIs(t, err, ErrCSRFHandshake)
}

func TestDo_StepObserver(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)

	var (
		mu    sync.Mutex
		steps []Step
	)
	c := p.client(WithStepObserver(func(s Step, err error, _ time.Duration) {
		assert.NoError(t, err)
		mu.Lock()
		steps = append(steps, s)
		mu.Unlock()
	}))

	_, err := c.Do(context.Background(), Request{Method: "POST", URL: "/x"}, "user-jwt", "D1")
	require.NoError(t, err)
	assert.Equal(t, []Step{
		StepDestinationToken,
		StepDestinationLookup,
		StepConnectivityToken,
		StepCSRFHandshake,
		StepProxyRequest,
	}, steps)
}

func TestDo_CanceledContext(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.client().Do(ctx, Request{URL: "/x"}, "user-jwt", "D1")
	require.ErrorIs(t, err, ErrTokenAcquisition)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, p.tokenCalls.Load())
}

func TestDoDirect(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)

	var got *http.Request
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":[]}`))
	}))
	t.Cleanup(backend.Close)

	p.destBody = `{"destinationConfiguration":{"Name":"S4","URL":"` + backend.URL + `","Authentication":"OAuth2UserTokenExchange"},
		"authTokens":[{"type":"Bearer","value":"exchanged"}]}`

	resp, err := p.client().DoDirect(context.Background(), Request{
		URL:    "/api/items",
		Header: map[string]string{"Accept-Language": "de"},
		JSON:   true,
	}, "user-jwt", "S4")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": []any{}}, resp.Data)

	require.NotNil(t, got)
	assert.Equal(t, "/api/items", got.URL.Path)
	assert.Equal(t, "Bearer exchanged", got.Header.Get(HeaderAuthorization))
	assert.Equal(t, "de", got.Header.Get("Accept-Language"))
	assert.Empty(t, got.Header.Get(HeaderProxyAuthorization))

	lookup := p.lookupRequests()
	require.Len(t, lookup, 1)
	assert.Equal(t, "user-jwt", lookup[0].Header.Get(HeaderUserToken))

	// destination token only
	assert.EqualValues(t, 1, p.tokenCalls.Load())
	assert.Empty(t, p.proxiedRequests())
}

func TestDoDirect_RequiresAuthToken(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)

	_, err := p.client().DoDirect(context.Background(), Request{URL: "/x"}, "user-jwt", "D1")
	require.ErrorIs(t, err, ErrDestinationLookup)
	assert.Contains(t, err.Error(), "no auth tokens")
}

func TestDestination(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)
	p.destBody = `{
  "owner": {"SubaccountId": "sub-1", "InstanceId": null},
  "destinationConfiguration": {"Name": "D1", "Type": "HTTP", "URL": "http://erp:44300",
    "Authentication": "PrincipalPropagation", "ProxyType": "OnPremise", "sap-client": "100"},
  "authTokens": [{"type": "Bearer", "value": "secret-value"}]
}`

	d, err := p.client().Destination(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", d.Owner.SubaccountID)
	assert.Equal(t, "http://erp:44300", d.Configuration.URL)
	assert.Equal(t, "OnPremise", d.Configuration.ProxyType)
	assert.Equal(t, "100", d.Configuration.Properties["sap-client"])
	require.Len(t, d.AuthTokens, 1)
	assert.NotContains(t, d.AuthTokens[0].String(), "secret-value")

	// no connectivity token, no proxy traffic
	assert.EqualValues(t, 1, p.tokenCalls.Load())
	assert.Empty(t, p.proxiedRequests())

	_, err = p.client().Destination(context.Background(), "")
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestDestination_NameIsEscaped(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)

	_, err := p.client().Destination(context.Background(), "my dest/1")
	require.NoError(t, err)
	lookup := p.lookupRequests()
	require.Len(t, lookup, 1)
	assert.Equal(t, "/destination-configuration/v1/destinations/my%20dest%2F1", lookup[0].URL)
}

func TestDestination_Redacted(t *testing.T) {
	t.Parallel()
	d := &Destination{
		Configuration: Configuration{
			Name: "D1",
			URL:  "http://erp:44300",
			Properties: map[string]any{
				"Name":            "D1",
				"Password":        "hunter2",
				"clientSecret":    "s3cr3t",
				"tokenServiceURL": "https://uaa/oauth/token",
				"sap-client":      "100",
			},
		},
		AuthTokens: []AuthToken{{Type: "Bearer", Value: "abc"}},
	}

	r := d.Redacted()
	assert.Equal(t, "[REDACTED]", r.AuthTokens[0].Value)
	assert.Equal(t, "[REDACTED]", r.Configuration.Properties["Password"])
	assert.Equal(t, "[REDACTED]", r.Configuration.Properties["clientSecret"])
	assert.Equal(t, "https://uaa/oauth/token", r.Configuration.Properties["tokenServiceURL"])
	assert.Equal(t, "100", r.Configuration.Properties["sap-client"])
	// original untouched
	assert.Equal(t, "abc", d.AuthTokens[0].Value)
	assert.Equal(t, "hunter2", d.Configuration.Properties["Password"])

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")
	assert.Contains(t, string(raw), `"sap-client":"100"`)
	assert.Contains(t, string(raw), `"URL":"http://erp:44300"`)
}
