package connectivity

import (
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-connect/pkg/xsenv"
)

// Step names a stage of the call chain. Used in errors, logs and metrics.
type Step string

const (
	StepDestinationToken  Step = "destination token"
	StepDestinationLookup Step = "destination lookup"
	StepConnectivityToken Step = "connectivity token"
	StepCSRFHandshake     Step = "csrf handshake"
	StepProxyRequest      Step = "proxy request"
	StepDirectRequest     Step = "direct request"
)

// StepObserver is told about every finished step, successful or not.
type StepObserver func(step Step, err error, elapsed time.Duration)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for identity, destination and direct calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTransport sets the transport proxied requests are cloned from.
func WithTransport(t *http.Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithServices replaces the VCAP_SERVICES reader. It is called once per
// operation so bindings are never cached across calls.
func WithServices(fn func() (*xsenv.Services, error)) Option {
	return func(c *Client) {
		if fn != nil {
			c.services = fn
		}
	}
}

// WithEnv replaces os.LookupEnv for the HTTP_PROXY override.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(c *Client) {
		if lookup != nil {
			c.lookupEnv = lookup
		}
	}
}

// WithLogger sets the logger for step outcomes. Secrets are never logged.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithStepObserver registers fn to be called after every step.
func WithStepObserver(fn StepObserver) Option {
	return func(c *Client) { c.observe = fn }
}

// CallOption tunes a single operation.
type CallOption func(*callOptions)

type callOptions struct {
	identityService string
	endUserToken    string
	noEncoding      bool
	encodedURL      bool
}

// WithIdentityService looks up the identity service by instance name instead
// of by the xsuaa tag.
func WithIdentityService(name string) CallOption {
	return func(o *callOptions) { o.identityService = name }
}

// WithEndUserToken forwards token to the destination service as X-user-token.
func WithEndUserToken(token string) CallOption {
	return func(o *callOptions) { o.endUserToken = token }
}

// WithNoEncoding returns the body as raw bytes and skips JSON decoding.
// Use it for binary downloads.
func WithNoEncoding() CallOption {
	return func(o *callOptions) { o.noEncoding = true }
}

// WithEncodedURL marks Request.URL as already percent-encoded, so the CSRF
// handshake uses it as is instead of encoding it again.
func WithEncodedURL() CallOption {
	return func(o *callOptions) { o.encodedURL = true }
}

func applyCallOptions(opts []CallOption) callOptions {
	var co callOptions
	for _, o := range opts {
		if o != nil {
			o(&co)
		}
	}
	return co
}

func defaultClient() *Client {
	return &Client{
		httpClient: &http.Client{},
		transport:  http.DefaultTransport.(*http.Transport),
		services:   xsenv.FromEnv,
		lookupEnv:  os.LookupEnv,
		log:        zap.NewNop(),
	}
}
