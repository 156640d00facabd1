package core

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-connect/pkg/connectivity"
	"github.com/joeydtaylor/steeze-connect/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-connect/pkg/middleware/logger"
	httpx "github.com/joeydtaylor/steeze-connect/pkg/transport/httpx"
)

// DestinationClient is the part of *connectivity.Client the router uses.
type DestinationClient interface {
	Do(ctx context.Context, req connectivity.Request, authToken, destinationName string, opts ...connectivity.CallOption) (*connectivity.Response, error)
	DoDirect(ctx context.Context, req connectivity.Request, authToken, destinationName string, opts ...connectivity.CallOption) (*connectivity.Response, error)
	Destination(ctx context.Context, destinationName string, opts ...connectivity.CallOption) (*connectivity.Destination, error)
}

var _ DestinationClient = (*connectivity.Client)(nil)

type BuildDeps struct {
	Auth         *auth.Middleware
	LogMW        *logger.Middleware
	Metrics      http.Handler
	Router       httpx.Router
	Destinations DestinationClient
	Creds        CredentialsProvider
	Log          *zap.Logger
}
