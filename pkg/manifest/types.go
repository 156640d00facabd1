package manifest

// HandlerType enumerates the supported handler kinds.
type HandlerType string

const (
	HandlerInproc HandlerType = "inproc"
	// HandlerDestinationProxy sends the request to an on-premise destination
	// through the connectivity proxy.
	HandlerDestinationProxy HandlerType = "destination.proxy"
	// HandlerDestinationDirect sends the request straight to an internet
	// destination using the auth token the destination service issues.
	HandlerDestinationDirect HandlerType = "destination.direct"
	// HandlerDestinationConfig returns the resolved destination, secrets redacted.
	HandlerDestinationConfig HandlerType = "destination.config"
)

// DownstreamAuthType selects which end-user token is propagated to the backend.
type DownstreamAuthType string

const (
	AuthNone DownstreamAuthType = "none"
	// AuthUserToken propagates the caller's validated bearer token.
	AuthUserToken DownstreamAuthType = "user-token"
	// AuthStaticToken propagates a token read from the environment.
	AuthStaticToken DownstreamAuthType = "static-token"
)

// IsDestination reports whether the handler talks to the destination service.
func (t HandlerType) IsDestination() bool {
	switch t {
	case HandlerDestinationProxy, HandlerDestinationDirect, HandlerDestinationConfig:
		return true
	}
	return false
}
