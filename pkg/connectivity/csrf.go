package connectivity

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-connect/pkg/xsenv"
)

// fetchCSRF runs the x-csrf-token handshake for req through the same proxy
// and auth headers the real request will use.
func (c *Client) fetchCSRF(ctx context.Context, req Request, authToken, connToken string, dest *Destination, conn xsenv.Credentials, encoded bool) (*CSRFHeaders, error) {
	path := req.URL
	if !encoded {
		path = encodeURI(path)
	}
	preflight := Request{
		Method: http.MethodOptions,
		URL:    path,
		Header: map[string]string{HeaderCSRFToken: "Fetch"},
	}
	opts, err := c.assemble(preflight, authToken, connToken, dest, conn, nil)
	if err != nil {
		return nil, err
	}

	var out *CSRFHeaders
	err = c.timed(ctx, StepCSRFHandshake, func() error {
		resp, err := c.send(ctx, opts, true)
		if err != nil {
			return err
		}
		out = csrfFrom(resp.Header)
		return nil
	})
	if err != nil {
		return nil, stepError(ErrCSRFHandshake, string(StepCSRFHandshake), err)
	}

	c.log.Debug("csrf token fetched",
		zap.Bool("token", out.Token != ""),
		zap.Bool("cookie", out.Cookie != ""),
	)
	return out, nil
}

// csrfFrom extracts the token and the session cookies. No Set-Cookie means no
// Cookie header.
func csrfFrom(h http.Header) *CSRFHeaders {
	return &CSRFHeaders{
		Token:  h.Get(HeaderCSRFToken),
		Cookie: strings.Join(h.Values("Set-Cookie"), ";"),
	}
}
