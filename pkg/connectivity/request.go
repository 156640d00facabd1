package connectivity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/joeydtaylor/steeze-connect/pkg/codec"
	"github.com/joeydtaylor/steeze-connect/pkg/xsenv"
)

// EnvHTTPProxy overrides the connectivity proxy when present, e.g. in
// Business Application Studio.
const EnvHTTPProxy = "HTTP_PROXY"

// RequestOptions is a fully assembled request that has not been sent.
type RequestOptions struct {
	Method string
	URL    string
	// Proxy is the forward proxy the request must go through. Nil for
	// direct requests.
	Proxy  *url.URL
	Header http.Header
	Body   any
	JSON   bool
}

// HTTPRequest builds an *http.Request from the options. The body can only be
// read once, so call it once per dispatch.
func (o *RequestOptions) HTTPRequest(ctx context.Context) (*http.Request, error) {
	body, encoded, err := encodeBody(o.Body, o.JSON)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, o.Method, o.URL, body)
	if err != nil {
		return nil, err
	}
	req.Header = o.Header.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if o.JSON {
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", codec.JSON.ContentType())
		}
		if encoded && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", codec.JSON.ContentType())
		}
	}
	return req, nil
}

// ProxyTransport clones base (http.DefaultTransport when nil) and routes it
// through the options' proxy.
func (o *RequestOptions) ProxyTransport(base *http.Transport) *http.Transport {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport)
	}
	t := base.Clone()
	if o.Proxy != nil {
		t.Proxy = http.ProxyURL(o.Proxy)
		// HTTPS targets tunnel through CONNECT, which does not carry request headers.
		if pa := o.Header.Get(HeaderProxyAuthorization); pa != "" {
			t.ProxyConnectHeader = http.Header{HeaderProxyAuthorization: {pa}}
		}
	}
	return t
}

// assemble merges headers in order: proxy auth, caller headers, destination
// auth, CSRF headers; then picks the proxy.
func (c *Client) assemble(req Request, authToken, connToken string, dest *Destination, conn xsenv.Credentials, csrf *CSRFHeaders) (*RequestOptions, error) {
	h := http.Header{}
	h.Set(HeaderProxyAuthorization, "Bearer "+connToken)
	for k, v := range req.Header {
		h.Set(k, v)
	}
	if auth, ok := dest.authHeader(); ok {
		h.Set(HeaderAuthorization, auth)
		h.Del(HeaderConnectivityAuth)
	} else {
		h.Set(HeaderConnectivityAuth, "Bearer "+authToken)
	}
	csrf.apply(h)

	proxy, override, err := c.proxyFor(conn)
	if err != nil {
		return nil, stepError(ErrConfiguration, string(StepProxyRequest), err)
	}
	if override {
		// The override proxy answers 431 when the principal token is attached.
		h.Del(HeaderConnectivityAuth)
	}

	return &RequestOptions{
		Method: req.method(),
		URL:    dest.Configuration.URL + req.URL,
		Proxy:  proxy,
		Header: h,
		Body:   req.Body,
		JSON:   req.JSON,
	}, nil
}

// proxyFor returns the proxy URL and whether it came from HTTP_PROXY.
func (c *Client) proxyFor(conn xsenv.Credentials) (*url.URL, bool, error) {
	if v, ok := c.lookupEnv(EnvHTTPProxy); ok && strings.TrimSpace(v) != "" {
		u, err := url.Parse(strings.TrimSpace(v))
		if err != nil {
			return nil, true, fmt.Errorf("invalid %s: %w", EnvHTTPProxy, err)
		}
		return u, true, nil
	}
	if conn.OnPremiseProxyHost == "" || conn.OnPremiseProxyPort == "" {
		return nil, false, errors.New("connectivity binding has no onpremise_proxy_host/onpremise_proxy_port")
	}
	return &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(conn.OnPremiseProxyHost, conn.OnPremiseProxyPort),
	}, false, nil
}

// send dispatches opts and buffers the reply. Errors are returned unwrapped;
// the caller decides which step failed.
func (c *Client) send(ctx context.Context, opts *RequestOptions, noEncoding bool) (*Response, error) {
	req, err := opts.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}

	hc := c.httpClient
	if opts.Proxy != nil {
		if req.URL.Scheme == "https" {
			// Sent on CONNECT only; inside the tunnel it would reach the backend.
			req.Header.Del(HeaderProxyAuthorization)
		}
		t := opts.ProxyTransport(c.transport)
		defer t.CloseIdleConnections()
		hc = &http.Client{
			Transport:     t,
			CheckRedirect: c.httpClient.CheckRedirect,
			Jar:           c.httpClient.Jar,
			Timeout:       c.httpClient.Timeout,
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
	}
	if opts.JSON && !noEncoding && len(body) > 0 {
		var v any
		if codec.JSON.Unmarshal(body, &v) == nil {
			out.Data = v
		}
	}
	return out, nil
}

// encodeBody turns a Request body into a reader. The bool reports whether the
// body was JSON-encoded here.
func encodeBody(body any, asJSON bool) (io.Reader, bool, error) {
	switch b := body.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return bytes.NewReader(b), false, nil
	case string:
		return strings.NewReader(b), false, nil
	case io.Reader:
		return b, false, nil
	}
	if !asJSON {
		return nil, false, fmt.Errorf("body of type %T needs JSON set", body)
	}
	raw, err := codec.JSON.Marshal(body)
	if err != nil {
		return nil, false, fmt.Errorf("encode body: %w", err)
	}
	return bytes.NewReader(raw), true, nil
}

// uriReserved are the characters encodeURI leaves alone besides alphanumerics.
const uriReserved = ";,/?:@&=+$-_.!~*'()#"

// encodeURI percent-encodes s like ECMAScript encodeURI: reserved URI
// characters survive, everything else is UTF-8 percent-encoded.
func encodeURI(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ('0' <= ch && ch <= '9') ||
			strings.IndexByte(uriReserved, ch) >= 0 {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[ch>>4])
		b.WriteByte(hex[ch&0x0f])
	}
	return b.String()
}
