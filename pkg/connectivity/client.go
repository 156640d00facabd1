// Package connectivity sends requests to on-premise systems through the
// platform connectivity proxy, resolving the target from the destination
// service.
package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-connect/pkg/xsenv"
)

// Client runs the destination call chain. It holds no per-call state; every
// operation re-reads bindings and re-acquires tokens, so a Client is safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport
	services   func() (*xsenv.Services, error)
	lookupEnv  func(string) (string, bool)
	log        *zap.Logger
	observe    StepObserver
}

// New returns a Client that reads bindings from VCAP_SERVICES unless
// WithServices says otherwise.
func New(opts ...Option) *Client {
	c := defaultClient()
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	return c
}

// timed runs fn as step, reporting the outcome to the observer and the log.
func (c *Client) timed(ctx context.Context, step Step, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	if c.observe != nil {
		c.observe(step, err, elapsed)
	}
	if err != nil {
		c.log.Warn("step failed",
			zap.String("step", string(step)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return err
	}
	c.log.Debug("step done", zap.String("step", string(step)), zap.Duration("elapsed", elapsed))
	return nil
}

// bindings are the service credentials one operation works with.
type bindings struct {
	identity     xsenv.Credentials
	destination  xsenv.Credentials
	connectivity xsenv.Credentials
}

// resolve reads the bindings an operation needs. The identity service is
// looked up by name when an override is set, by the xsuaa tag otherwise.
func (c *Client) resolve(co callOptions, withConnectivity bool) (bindings, error) {
	const op = "service bindings"
	var b bindings

	svc, err := c.services()
	if err != nil {
		return b, stepError(ErrConfiguration, op, err)
	}

	if co.identityService != "" {
		b.identity, err = svc.ByName(co.identityService)
	} else {
		b.identity, err = svc.ByTag(xsenv.TagXSUAA)
	}
	if err != nil {
		return b, stepError(ErrConfiguration, op, err)
	}
	if b.destination, err = svc.ByTag(xsenv.TagDestination); err != nil {
		return b, stepError(ErrConfiguration, op, err)
	}
	if withConnectivity {
		if b.connectivity, err = svc.ByTag(xsenv.TagConnectivity); err != nil {
			return b, stepError(ErrConfiguration, op, err)
		}
	}
	return b, nil
}

// destination runs steps 1 and 2: destination token, then lookup.
func (c *Client) destination(ctx context.Context, b bindings, name, userToken string) (*Destination, error) {
	if name == "" {
		return nil, stepError(ErrConfiguration, string(StepDestinationLookup), errors.New("destination name is empty"))
	}
	destToken, err := c.fetchToken(ctx, StepDestinationToken, b.identity, b.destination)
	if err != nil {
		return nil, err
	}
	return c.lookupDestination(ctx, b.destination, name, destToken, userToken)
}

// prepare runs every step up to, but not including, the final dispatch.
func (c *Client) prepare(ctx context.Context, req Request, authToken, name string, co callOptions) (*RequestOptions, error) {
	b, err := c.resolve(co, true)
	if err != nil {
		return nil, err
	}
	dest, err := c.destination(ctx, b, name, co.endUserToken)
	if err != nil {
		return nil, err
	}
	connToken, err := c.fetchToken(ctx, StepConnectivityToken, b.identity, b.connectivity)
	if err != nil {
		return nil, err
	}

	var csrf *CSRFHeaders
	if req.needsCSRF() {
		if csrf, err = c.fetchCSRF(ctx, req, authToken, connToken, dest, b.connectivity, co.encodedURL); err != nil {
			return nil, err
		}
	}
	return c.assemble(req, authToken, connToken, dest, b.connectivity, csrf)
}

// Do sends req to the named destination through the connectivity proxy.
// authToken is the end user's token, propagated as
// SAP-Connectivity-Authentication unless the destination supplies its own
// auth tokens. Non-2xx replies from the backend are returned as a Response,
// not an error.
func (c *Client) Do(ctx context.Context, req Request, authToken, destinationName string, opts ...CallOption) (*Response, error) {
	co := applyCallOptions(opts)
	ro, err := c.prepare(ctx, req, authToken, destinationName, co)
	if err != nil {
		return nil, err
	}

	var resp *Response
	err = c.timed(ctx, StepProxyRequest, func() error {
		var err error
		resp, err = c.send(ctx, ro, co.noEncoding)
		return err
	})
	if err != nil {
		return nil, stepError(ErrProxyRequest, string(StepProxyRequest), err)
	}
	return resp, nil
}

// BuildRequest runs the whole chain, CSRF handshake included, and returns the
// request Do would have sent without sending it.
func (c *Client) BuildRequest(ctx context.Context, req Request, authToken, destinationName string, opts ...CallOption) (*RequestOptions, error) {
	return c.prepare(ctx, req, authToken, destinationName, applyCallOptions(opts))
}

// Destination resolves the named destination only.
func (c *Client) Destination(ctx context.Context, destinationName string, opts ...CallOption) (*Destination, error) {
	co := applyCallOptions(opts)
	b, err := c.resolve(co, false)
	if err != nil {
		return nil, err
	}
	return c.destination(ctx, b, destinationName, co.endUserToken)
}

// DoDirect sends req straight to an internet-facing destination. authToken
// is forwarded to the destination service as X-User-Token so it can exchange
// it, and the first returned auth token becomes the Authorization header.
func (c *Client) DoDirect(ctx context.Context, req Request, authToken, destinationName string, opts ...CallOption) (*Response, error) {
	co := applyCallOptions(opts)
	b, err := c.resolve(co, false)
	if err != nil {
		return nil, err
	}
	dest, err := c.destination(ctx, b, destinationName, authToken)
	if err != nil {
		return nil, err
	}
	auth, ok := dest.authHeader()
	if !ok {
		return nil, stepError(ErrDestinationLookup, string(StepDestinationLookup),
			fmt.Errorf("destination %q returned no auth tokens", destinationName))
	}

	h := http.Header{}
	for k, v := range req.Header {
		h.Set(k, v)
	}
	h.Set(HeaderAuthorization, auth)
	ro := &RequestOptions{
		Method: req.method(),
		URL:    dest.Configuration.URL + req.URL,
		Header: h,
		Body:   req.Body,
		JSON:   req.JSON,
	}

	var resp *Response
	err = c.timed(ctx, StepDirectRequest, func() error {
		var err error
		resp, err = c.send(ctx, ro, co.noEncoding)
		return err
	})
	if err != nil {
		return nil, stepError(ErrProxyRequest, string(StepDirectRequest), err)
	}
	return resp, nil
}
