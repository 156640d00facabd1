// bundlefx/bundlefx.go
package bundlefx

import (
	"go.uber.org/fx"

	"github.com/joeydtaylor/steeze-connect/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-connect/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-connect/pkg/middleware/metrics"
)

// Module provides the HTTP middleware stack: auth, access logging, metrics.
var Module = fx.Options(
	auth.Module,
	logger.Module,
	metrics.Module,
)
