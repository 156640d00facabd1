package auth

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(ProvideAuthentication),
	fx.Invoke(registerKeyRefresh),
)

// registerKeyRefresh runs the key refresh loop for the app's lifetime.
func registerKeyRefresh(lc fx.Lifecycle, m *Middleware) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				m.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
