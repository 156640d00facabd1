package logger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Middleware writes one access-log line per request.
type Middleware struct{}

func ProvideLoggerMiddleware() *Middleware { return &Middleware{} }

// ProvideLogger is the app logger, teed to stdout and log/system.log.
func ProvideLogger() *zap.Logger { return NewLog("system.log") }

var Module = fx.Options(
	fx.Provide(ProvideLoggerMiddleware),
	fx.Provide(ProvideLogger),
)
